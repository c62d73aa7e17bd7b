package pipe

import (
	"github.com/gpgclient/gpgclient/internal/gpgerr"
	"github.com/gpgclient/gpgclient/internal/ioxfer"
	"github.com/gpgclient/gpgclient/internal/reactor"
	"github.com/gpgclient/gpgclient/internal/statusproto"
)

// Start registers every allocated descriptor's handler with the
// reactor. It must be called once, after StatusSink/ColonSink/
// CommandSink have been assigned.
func (d *Driver) Start() error {
	if d.status != nil {
		tag, err := d.r.Register(d.status.fd, toReactorDir(d.status.dir), d.handleStatus)
		if err != nil {
			return err
		}
		d.status.tag = tag
	}
	if d.colon != nil {
		tag, err := d.r.Register(d.colon.fd, toReactorDir(d.colon.dir), d.handleColon)
		if err != nil {
			return err
		}
		d.colon.tag = tag
	}
	for label, ch := range d.data {
		tag, err := d.r.Register(ch.fd, toReactorDir(ch.dir), d.makeDataHandler(label))
		if err != nil {
			return err
		}
		ch.tag = tag
	}
	return nil
}

func toReactorDir(dir ioxfer.Direction) reactor.Direction {
	if dir == ioxfer.DirRead {
		return reactor.DirRead
	}
	return reactor.DirWrite
}

// handleStatus reads and dispatches status lines, intercepting
// GET_BOOL/GET_LINE/GET_HIDDEN as command prompts per §4.6.
func (d *Driver) handleStatus(fd int) error {
	buf := make([]byte, readChunk)
	n, err := ioxfer.Read(fd, buf)
	if err != nil {
		return err
	}
	if n == 0 {
		d.r.Deregister(d.status.tag)
		if cerr := d.statusBuf.Finish(); cerr != nil {
			return cerr
		}
		d.r.Emit(reactor.Event{Kind: reactor.EventDone})
		return nil
	}

	lines, ferr := d.statusBuf.Feed(buf[:n])
	if ferr != nil {
		return ferr
	}
	for _, raw := range lines {
		line, ok := statusproto.ParsePipeStatus(string(raw))
		if !ok {
			continue
		}
		switch line.Code {
		case statusproto.CodeGET_BOOL, statusproto.CodeGET_LINE, statusproto.CodeGET_HIDDEN:
			if err := d.handlePrompt(line); err != nil {
				return err
			}
			continue
		case statusproto.CodeEND_STREAM:
			if d.command != nil {
				d.r.Deregister(d.command.tag)
			}
			continue
		}
		if d.StatusSink != nil {
			if err := d.StatusSink(line); err != nil {
				return err
			}
		}
	}
	return nil
}

// handlePrompt implements the command-handler suspend/flush/resume
// discipline from §4.6: suspend the coupled output channel, ask
// CommandSink for a reply, write it back (appending '\n' if absent),
// then re-enable the coupled channel.
func (d *Driver) handlePrompt(line statusproto.Line) error {
	if d.command == nil {
		return gpgerr.New(gpgerr.SourceEngine, gpgerr.KindUnexpectedCommand, "engine prompt with no command channel")
	}
	keyword := ""
	if len(line.Args) > 0 {
		keyword = line.Args[0]
	}

	coupled := d.data[d.CoupledOutput]
	if coupled != nil && coupled.tag != 0 {
		d.r.Deregister(coupled.tag)
	}

	var text string
	var ok bool
	if d.CommandSink != nil {
		text, ok = d.CommandSink(line.Code, keyword)
	}
	if !ok {
		text = ""
	}
	if len(text) == 0 || text[len(text)-1] != '\n' {
		text += "\n"
	}
	if _, err := ioxfer.Write(d.command.fd, []byte(text)); err != nil {
		return err
	}

	if coupled != nil && !coupled.eof {
		tag, err := d.r.Register(coupled.fd, toReactorDir(coupled.dir), d.makeDataHandler(d.CoupledOutput))
		if err != nil {
			return err
		}
		coupled.tag = tag
	}
	return nil
}

// handleColon reads and buffers colon records, forwarding each to
// ColonSink as fields with \xHH escapes decoded.
func (d *Driver) handleColon(fd int) error {
	buf := make([]byte, readChunk)
	n, err := ioxfer.Read(fd, buf)
	if err != nil {
		return err
	}
	if n == 0 {
		d.r.Deregister(d.colon.tag)
		return d.colonBuf.Finish()
	}
	lines, ferr := d.colonBuf.Feed(buf[:n])
	if ferr != nil {
		return ferr
	}
	for _, raw := range lines {
		if d.ColonSink == nil {
			continue
		}
		d.ColonSink(splitColonFields(string(raw)))
	}
	return nil
}

func splitColonFields(line string) []string {
	var fields []string
	start := 0
	for i := 0; i < len(line); i++ {
		if line[i] == ':' {
			fields = append(fields, decodeColonField(line[start:i]))
			start = i + 1
		}
	}
	fields = append(fields, decodeColonField(line[start:]))
	return fields
}

func decodeColonField(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+2 < len(s) && s[i+1] == 'x' {
			if v, ok := hex2(s[i+2], safeByte(s, i+3)); ok {
				out = append(out, v)
				i += 3
				continue
			}
		}
		out = append(out, s[i])
	}
	return string(out)
}

func safeByte(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return 0
}

func hex2(hi, lo byte) (byte, bool) {
	h, ok1 := hexDigit(hi)
	l, ok2 := hexDigit(lo)
	if !ok1 || !ok2 {
		return 0, false
	}
	return h<<4 | l, true
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// makeDataHandler returns the inbound/outbound handler for the data
// channel named label: inbound appends engine output to its
// DataObject, outbound writes from its DataObject to the engine and
// closes the engine-side pipe on source EOF.
func (d *Driver) makeDataHandler(label string) reactor.Handler {
	return func(fd int) error {
		ch := d.data[label]
		if ch.dir == ioxfer.DirRead {
			return d.pumpInbound(ch)
		}
		return d.pumpOutbound(ch)
	}
}

func (d *Driver) pumpInbound(ch *dataChannel) error {
	buf := make([]byte, readChunk)
	n, err := ioxfer.Read(ch.fd, buf)
	if err != nil {
		return err
	}
	if n == 0 {
		ch.eof = true
		d.r.Deregister(ch.tag)
		return ioxfer.Close(ch.fd)
	}
	if ch.data != nil {
		if _, werr := ch.data.Write(buf[:n]); werr != nil {
			return werr
		}
	}
	return nil
}

func (d *Driver) pumpOutbound(ch *dataChannel) error {
	buf := make([]byte, readChunk)
	var n int
	var err error
	if ch.data != nil {
		n, err = ch.data.Read(buf)
		if err != nil {
			return err
		}
	}
	if n == 0 {
		ch.eof = true
		d.r.Deregister(ch.tag)
		return ioxfer.Close(ch.fd)
	}
	if _, werr := ioxfer.Write(ch.fd, buf[:n]); werr != nil {
		return werr
	}
	return nil
}

// Close tears down every descriptor this driver owns without waiting
// for the child; callers reap the child separately (see Wait).
func (d *Driver) Close() {
	if d.closed {
		return
	}
	d.closed = true
	if d.status != nil {
		ioxfer.Close(d.status.fd)
	}
	if d.colon != nil {
		ioxfer.Close(d.colon.fd)
	}
	if d.command != nil {
		ioxfer.Close(d.command.fd)
	}
	for _, ch := range d.data {
		if !ch.eof {
			ioxfer.Close(ch.fd)
		}
	}
}

// Wait reaps the child process, blocking until it exits.
func (d *Driver) Wait() (ioxfer.WaitResult, error) {
	_, res, err := ioxfer.Waitpid(d.pid, true)
	return res, err
}

// PID returns the spawned engine's process id.
func (d *Driver) PID() int { return d.pid }
