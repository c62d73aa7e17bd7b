package pipe

import (
	"os"

	"github.com/gpgclient/gpgclient/internal/dataobj"
	"github.com/gpgclient/gpgclient/internal/ioxfer"
	"github.com/gpgclient/gpgclient/internal/linebuf"
	"github.com/gpgclient/gpgclient/internal/reactor"
	"github.com/gpgclient/gpgclient/internal/statusproto"
)

const readChunk = 4096

// dataChannel is one spawned descriptor's parent-side bookkeeping.
type dataChannel struct {
	fd    int
	dir   ioxfer.Direction
	label string
	data  *dataobj.DataObject
	tag   int
	eof   bool
}

// Driver drives one spawned engine process: it owns the parent side of
// every descriptor allocated for the invocation, registers handlers with
// a reactor.Reactor, and dispatches status/colon lines and command
// prompts.
type Driver struct {
	r   reactor.Reactor
	pid int

	status   *dataChannel
	statusBuf *linebuf.Buffer
	// StatusSink receives every parsed status line. Set before Start.
	StatusSink func(statusproto.Line) error

	colon    *dataChannel
	colonBuf *linebuf.Buffer
	// ColonSink receives each colon record's fields, with \xHH escapes
	// decoded.
	// Set before Start.
	ColonSink func(fields []string)

	command *dataChannel
	// CommandSink answers an interactive prompt (GET_BOOL/GET_LINE/
	// GET_HIDDEN): given the status code and keyword, it returns the
	// reply line and whether it has one. If it returns ok=false, the
	// driver writes a bare newline to advance the engine, per §4.6.
	CommandSink func(code statusproto.Code, keyword string) (reply string, ok bool)
	// CoupledOutput names the data channel label (see ArgvBuilder.DataRef
	// labels) whose delivery is suspended while a command round-trip is
	// in flight and flushed/resumed afterward, per §4.6.
	CoupledOutput string

	data map[string]*dataChannel

	closed bool
}

// Spawn builds argv from b, allocates a pipe for every requested
// descriptor, forks the engine, and returns a Driver registered with r.
func Spawn(r reactor.Reactor, b *ArgvBuilder) (*Driver, error) {
	type alloc struct {
		parentFD  int
		childSide int
		childFD   int
		slot      dataSlot
	}

	allocs := make([]alloc, len(b.slots))
	childFD := make([]int, len(b.slots))
	nextExtra := 3

	for i, s := range b.slots {
		readFD, writeFD, err := ioxfer.Pipe()
		if err != nil {
			return nil, err
		}

		var parentFD, childSide int
		if s.dir == ioxfer.DirRead {
			// engine writes, parent reads
			parentFD, childSide = readFD, writeFD
		} else {
			// parent writes, engine reads
			parentFD, childSide = writeFD, readFD
		}

		target := s.fdHint
		if target < 0 {
			target = nextExtra
			nextExtra++
		}
		if err := ioxfer.ClearCloexec(childSide); err != nil {
			return nil, err
		}

		allocs[i] = alloc{parentFD: parentFD, childSide: childSide, childFD: target, slot: s}
		childFD[i] = target
	}

	maxFD := 2
	for _, a := range allocs {
		if a.childFD > maxFD {
			maxFD = a.childFD
		}
	}
	files := make([]uintptr, maxFD+1)
	for i := range files {
		files[i] = ^uintptr(0)
	}
	files[0] = os.Stdin.Fd()
	files[1] = os.Stdout.Fd()
	files[2] = os.Stderr.Fd()
	for _, a := range allocs {
		files[a.childFD] = uintptr(a.childSide)
	}

	argv := append([]string{b.path}, resolve(b.tokens, childFD)...)

	pid, err := ioxfer.Spawn(ioxfer.SpawnRequest{Path: b.path, Argv: argv, Files: files})
	if err != nil {
		for _, a := range allocs {
			ioxfer.Close(a.parentFD)
			ioxfer.Close(a.childSide)
		}
		return nil, err
	}

	// The child inherited its side of every pipe via dup2 onto the
	// target fd; the original childSide descriptor in this process is
	// now redundant and must be closed, or the pipe will never report
	// EOF to the parent once the engine exits.
	for _, a := range allocs {
		ioxfer.Close(a.childSide)
	}

	d := &Driver{r: r, pid: pid, data: make(map[string]*dataChannel)}
	for _, a := range allocs {
		ch := &dataChannel{fd: a.parentFD, dir: a.slot.dir, label: a.slot.label, data: a.slot.data}
		switch a.slot.kind {
		case slotStatus:
			d.status = ch
			d.statusBuf = linebuf.New()
		case slotColon:
			d.colon = ch
			d.colonBuf = linebuf.New()
		case slotCommand:
			d.command = ch
		case slotData:
			d.data[a.slot.label] = ch
		}
	}
	return d, nil
}
