// Package dataobj implements the runtime's uniform byte-stream abstraction
// over memory, file-region, and pull-callback backed data.
//
// Field-by-field explicitness and careful bounds/EOF handling here follow
// the same discipline the teacher repository applies to its binary frame
// marshaling (internal/protocol/frame.go in the reference pack): every
// operation that can fail returns an explicit error, and no operation
// silently truncates.
package dataobj

import (
	"io"

	"github.com/gpgclient/gpgclient/internal/gpgerr"
)

// Encoding is the advisory content-encoding hint carried alongside a
// DataObject. It is conveyed to the engine as an invocation flag and never
// transforms the bytes held by the object itself.
type Encoding int

const (
	EncodingNone Encoding = iota
	EncodingBinary
	EncodingBase64
	EncodingArmor
)

// PullCallbacks supplies the backing functions for a pull-variant
// DataObject. SeekFunc and ReleaseFunc are optional.
type PullCallbacks struct {
	ReadFunc    func(p []byte) (int, error)
	SeekFunc    func(offset int64, whence int) (int64, error)
	ReleaseFunc func()
}

// DataObject is a tagged union over memory, file-region, and pull-callback
// backed byte streams, each carrying a content-encoding hint and an
// optional file-name hint.
type DataObject struct {
	kind kind

	// memory variant
	buf   []byte
	roff  int // read cursor
	owned bool

	// file-region variant
	file   io.ReadWriteSeeker
	base   int64
	length int64 // -1 means "rest of file"

	// pull variant
	pull   PullCallbacks
	pullEOF bool

	encoding Encoding
	fileName string
	closed   bool
}

type kind int

const (
	kindEmpty kind = iota
	kindMemory
	kindFileRegion
	kindPull
)

// NewMemory creates a memory-backed DataObject from an existing buffer.
// If owned is true, Read/Write operate on buf directly; otherwise buf is
// copied first so the caller's slice is never mutated.
func NewMemory(buf []byte, owned bool) *DataObject {
	b := buf
	if !owned {
		b = append([]byte(nil), buf...)
	}
	return &DataObject{kind: kindMemory, buf: b, owned: true}
}

// NewEmpty creates a zero-type DataObject. Its first Write auto-promotes
// it to a memory-backed object, per the specification's data-object
// invariant.
func NewEmpty() *DataObject {
	return &DataObject{kind: kindEmpty}
}

// NewFileRegion creates a DataObject reading/writing a byte range of an
// already-open file. length < 0 means "to the end of the file".
func NewFileRegion(f io.ReadWriteSeeker, offset, length int64) *DataObject {
	return &DataObject{kind: kindFileRegion, file: f, base: offset, length: length}
}

// NewPull creates a DataObject backed by caller-supplied callbacks.
func NewPull(cb PullCallbacks) *DataObject {
	return &DataObject{kind: kindPull, pull: cb}
}

// SetEncoding sets the advisory content-encoding hint.
func (d *DataObject) SetEncoding(e Encoding) { d.encoding = e }

// Encoding returns the advisory content-encoding hint.
func (d *DataObject) Encoding() Encoding { return d.encoding }

// SetFileName sets the file-name hint conveyed to the engine.
func (d *DataObject) SetFileName(name string) { d.fileName = name }

// FileName returns the file-name hint, or "" if unset.
func (d *DataObject) FileName() string { return d.fileName }

const memGrowChunk = 4096

// Read advances the object's logical cursor and returns the number of
// bytes read. It returns (0, nil) at EOF, matching the specification's
// read() contract rather than io.Reader's io.EOF convention, so callers
// driving an engine's outbound pipe can treat 0 uniformly as "done".
func (d *DataObject) Read(p []byte) (int, error) {
	if d.closed {
		return 0, gpgerr.New(gpgerr.SourceCore, gpgerr.KindInvalidValue, "read on released data object")
	}
	switch d.kind {
	case kindEmpty:
		return 0, nil
	case kindMemory:
		if d.roff >= len(d.buf) {
			return 0, nil
		}
		n := copy(p, d.buf[d.roff:])
		d.roff += n
		return n, nil
	case kindFileRegion:
		n, err := d.file.Read(p)
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, gpgerr.Wrap(gpgerr.SourceCore, gpgerr.KindReadError, "file region read", err)
		}
		return n, nil
	case kindPull:
		if d.pullEOF {
			return 0, nil
		}
		n, err := d.pull.ReadFunc(p)
		if n == 0 {
			d.pullEOF = true
		}
		if err != nil && err != io.EOF {
			return n, gpgerr.Wrap(gpgerr.SourceCore, gpgerr.KindReadError, "pull callback read", err)
		}
		return n, nil
	default:
		return 0, gpgerr.New(gpgerr.SourceCore, gpgerr.KindInvalidValue, "unknown data object kind")
	}
}

// Write grows a memory-backed object in fixed-size chunks, auto-promoting
// a zero-type object to memory-type on its first write. File-region
// objects write through directly; pull objects are not writable.
func (d *DataObject) Write(p []byte) (int, error) {
	if d.closed {
		return 0, gpgerr.New(gpgerr.SourceCore, gpgerr.KindInvalidValue, "write on released data object")
	}
	if d.kind == kindEmpty {
		d.kind = kindMemory
		d.owned = true
	}
	switch d.kind {
	case kindMemory:
		need := len(d.buf) + len(p)
		if cap(d.buf) < need {
			grown := ((need / memGrowChunk) + 1) * memGrowChunk
			nb := make([]byte, len(d.buf), grown)
			copy(nb, d.buf)
			d.buf = nb
		}
		d.buf = append(d.buf, p...)
		return len(p), nil
	case kindFileRegion:
		n, err := d.file.Write(p)
		if err != nil {
			return n, gpgerr.Wrap(gpgerr.SourceCore, gpgerr.KindWriteError, "file region write", err)
		}
		return n, nil
	case kindPull:
		return 0, gpgerr.New(gpgerr.SourceCore, gpgerr.KindInvalidValue, "pull data object is not writable")
	default:
		return 0, gpgerr.New(gpgerr.SourceCore, gpgerr.KindInvalidValue, "unknown data object kind")
	}
}

// Seek repositions the logical cursor. It is defined only for memory and
// file-region variants; pull variants support it only if SeekFunc was
// supplied.
func (d *DataObject) Seek(offset int64, whence int) (int64, error) {
	switch d.kind {
	case kindMemory:
		var base int64
		switch whence {
		case io.SeekStart:
			base = 0
		case io.SeekCurrent:
			base = int64(d.roff)
		case io.SeekEnd:
			base = int64(len(d.buf))
		default:
			return 0, gpgerr.New(gpgerr.SourceCore, gpgerr.KindInvalidValue, "invalid whence")
		}
		pos := base + offset
		if pos < 0 || pos > int64(len(d.buf)) {
			return 0, gpgerr.New(gpgerr.SourceCore, gpgerr.KindInvalidValue, "seek out of range")
		}
		d.roff = int(pos)
		return pos, nil
	case kindFileRegion:
		pos, err := d.file.Seek(offset, whence)
		if err != nil {
			return pos, gpgerr.Wrap(gpgerr.SourceCore, gpgerr.KindFileError, "file region seek", err)
		}
		return pos, nil
	case kindPull:
		if d.pull.SeekFunc == nil {
			return 0, gpgerr.New(gpgerr.SourceCore, gpgerr.KindNotImplemented, "pull data object does not support seek")
		}
		pos, err := d.pull.SeekFunc(offset, whence)
		if err != nil {
			return pos, gpgerr.Wrap(gpgerr.SourceCore, gpgerr.KindReadError, "pull callback seek", err)
		}
		d.pullEOF = false
		return pos, nil
	default:
		return 0, gpgerr.New(gpgerr.SourceCore, gpgerr.KindInvalidValue, "seek on empty data object")
	}
}

// Bytes returns the current contents of a memory-backed object without
// consuming the read cursor. It is used to capture engine output that was
// accumulated into a memory DataObject.
func (d *DataObject) Bytes() []byte {
	if d.kind != kindMemory {
		return nil
	}
	return d.buf
}

// Close releases the data object. For pull variants this invokes
// ReleaseFunc exactly once.
func (d *DataObject) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.kind == kindPull && d.pull.ReleaseFunc != nil {
		d.pull.ReleaseFunc()
	}
	return nil
}

// EscapeXML replaces '<', '>', '&', and NUL with their entity forms, per
// the specification's informational-XML formatting rule.
func EscapeXML(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '<':
			out = append(out, "&lt;"...)
		case '>':
			out = append(out, "&gt;"...)
		case '&':
			out = append(out, "&amp;"...)
		case 0:
			out = append(out, "&#00;"...)
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// UnescapeXML reverses EscapeXML. It is a strict inverse only for the four
// entities EscapeXML produces.
func UnescapeXML(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		if s[i] == '&' {
			switch {
			case hasPrefixAt(s, i, "&lt;"):
				out = append(out, '<')
				i += 4
				continue
			case hasPrefixAt(s, i, "&gt;"):
				out = append(out, '>')
				i += 4
				continue
			case hasPrefixAt(s, i, "&amp;"):
				out = append(out, '&')
				i += 5
				continue
			case hasPrefixAt(s, i, "&#00;"):
				out = append(out, 0)
				i += 5
				continue
			}
		}
		out = append(out, s[i])
		i++
	}
	return string(out)
}

func hasPrefixAt(s string, i int, prefix string) bool {
	if i+len(prefix) > len(s) {
		return false
	}
	return s[i:i+len(prefix)] == prefix
}
