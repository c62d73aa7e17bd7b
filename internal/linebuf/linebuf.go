// Package linebuf frames newline-terminated status/response lines coming
// off an engine's status, colon, or assuan channel.
//
// It generalizes the fixed-size, offset-tracked framing discipline the
// runtime otherwise uses for binary records (see internal/dataobj) to a
// ring-free line-oriented byte stream: each complete line is returned as
// its own slice, and an "attic" holds whatever tail of a read did not yet
// end in '\n'.
package linebuf

import (
	"bytes"

	"github.com/gpgclient/gpgclient/internal/gpgerr"
)

// LineLength is the maximum number of bytes a single line (including its
// terminating '\n') may occupy.
const LineLength = 1002

// Buffer accumulates bytes fed via Feed and yields complete lines via
// Lines. Feeding the same total byte stream in any chunking yields the
// same sequence of delivered lines.
type Buffer struct {
	attic []byte // carryover from a previous Feed that contained a partial line
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Feed appends chunk to the buffer and returns every complete line found,
// each without its trailing '\n'. Embedded NUL bytes are preserved. A line
// (including its terminator) longer than LineLength yields LineTooLong.
func (b *Buffer) Feed(chunk []byte) ([][]byte, error) {
	data := chunk
	if len(b.attic) > 0 {
		data = append(append([]byte(nil), b.attic...), chunk...)
		b.attic = nil
	}

	var lines [][]byte
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			if len(data) > LineLength {
				return lines, gpgerr.New(gpgerr.SourceCore, gpgerr.KindLineTooLong, "unterminated data exceeds line length")
			}
			if len(data) > 0 {
				b.attic = append([]byte(nil), data...)
			}
			return lines, nil
		}
		if idx+1 > LineLength {
			return lines, gpgerr.New(gpgerr.SourceCore, gpgerr.KindLineTooLong, "line exceeds maximum length")
		}
		line := make([]byte, idx)
		copy(line, data[:idx])
		lines = append(lines, line)
		data = data[idx+1:]
	}
}

// Finish signals end-of-stream. Any carried-over bytes with no
// terminating '\n' are a protocol error.
func (b *Buffer) Finish() error {
	if len(b.attic) > 0 {
		leftover := b.attic
		b.attic = nil
		_ = leftover
		return gpgerr.New(gpgerr.SourceCore, gpgerr.KindLineNotTerminated, "trailing data at end of stream has no line terminator")
	}
	return nil
}

// SplitWriter splits a payload exceeding LineLength into Assuan-style
// continuation lines, each terminated with "\\\n" except the final one,
// which is terminated with a bare "\n".
type SplitWriter struct{}

// Split returns the sequence of wire lines (each including its
// terminator) needed to transmit payload under the Assuan continuation
// convention.
func (SplitWriter) Split(payload []byte) [][]byte {
	// Reserve 2 bytes per line for "\\\n" (or 1 for the final "\n").
	const maxContent = LineLength - 2
	if len(payload) == 0 {
		return [][]byte{[]byte("\n")}
	}
	var out [][]byte
	for len(payload) > maxContent {
		chunk := payload[:maxContent]
		payload = payload[maxContent:]
		line := make([]byte, 0, len(chunk)+2)
		line = append(line, chunk...)
		line = append(line, '\\', '\n')
		out = append(out, line)
	}
	line := make([]byte, 0, len(payload)+1)
	line = append(line, payload...)
	line = append(line, '\n')
	out = append(out, line)
	return out
}

// Reassemble concatenates a sequence of received lines (without their
// terminators), stripping a trailing backslash continuation marker from
// every line but the last.
func Reassemble(lines [][]byte) []byte {
	var out []byte
	for i, l := range lines {
		if i < len(lines)-1 && len(l) > 0 && l[len(l)-1] == '\\' {
			out = append(out, l[:len(l)-1]...)
			continue
		}
		out = append(out, l...)
	}
	return out
}
