// Package assuan implements the Assuan-protocol engine driver: the
// COMMAND/S/D/OK/ERR/INQUIRE request-response dialogue used by the CMS
// engine family, carried over a pipe or a local Unix-domain socket.
//
// Grounded on the teacher's internal/protocol/session.go — a stateful,
// sequenced, addressed session dialogue driven through an explicit
// SessionState enum — and internal/websocket/dag_streamer.go's duplex
// streaming over a single connection; both are generalized here from
// their original transports (AOCS frames, websocket frames) to the
// textual Assuan line protocol, keeping the same shape: one connection
// object owning an explicit state, sending/receiving framed messages,
// and exposing a blocking call/response method to its caller.
package assuan

import (
	"time"

	"github.com/gpgclient/gpgclient/internal/gpgerr"
	"github.com/gpgclient/gpgclient/internal/ioxfer"
	"github.com/gpgclient/gpgclient/internal/linebuf"
	"github.com/gpgclient/gpgclient/internal/statusproto"
)

// State is the connection's position in the Assuan dialogue.
type State int

const (
	StateConnecting State = iota
	StateIdle
	StateInCommand
	StateClosed
)

// Response is the accumulated result of one command: every status line,
// the reassembled (and percent-decoded) data payload, and the terminal
// OK/ERR outcome.
type Response struct {
	Status  []statusproto.AssuanLine
	Data    []byte
	OK      bool
	ErrCode int
	ErrText string
}

// InquireFunc answers a server INQUIRE by returning the bytes to send
// back (the driver frames them as D lines followed by END).
type InquireFunc func(keyword string, args []string) ([]byte, error)

// Conn is one Assuan dialogue over fd, which may be a plain pipe (the
// FD=N inline descriptor-reference form only) or a Unix-domain socket
// (supports ancillary-data descriptor passing as well).
type Conn struct {
	fd      int
	isSock  bool
	buf     *linebuf.Buffer
	state   State
	timeout time.Duration

	// InquireHandler answers INQUIRE requests arriving mid-command. A nil
	// handler causes an INQUIRE to fail the command with KindInvalidResponse.
	InquireHandler InquireFunc
}

// Dial wraps an already-connected fd (parent side of a pipe or
// socketpair) as a Conn and reads the server's greeting line.
func Dial(fd int, isSocket bool, timeout time.Duration) (*Conn, error) {
	c := &Conn{fd: fd, isSock: isSocket, buf: linebuf.New(), state: StateConnecting, timeout: timeout}
	resp, err := c.readResponse()
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindInvalidResponse, "engine did not send a greeting")
	}
	c.state = StateIdle
	return c, nil
}

// Option issues "OPTION name=value" as an independent simple command.
func (c *Conn) Option(name, value string) error {
	_, err := c.Command(nil, "OPTION", name+"="+value)
	return err
}

// Command sends "VERB arg1 arg2 ...\n", optionally preceded by one
// ancillary file descriptor, and reads the full response up to its
// terminating OK or ERR line, answering any INQUIRE along the way.
func (c *Conn) Command(ancillaryFD *int, verb string, args ...string) (Response, error) {
	if c.state != StateIdle {
		return Response{}, gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindInvalidValue, "connection is not idle")
	}
	c.state = StateInCommand
	defer func() { c.state = StateIdle }()

	line := verb
	for _, a := range args {
		line += " " + a
	}
	line += "\n"

	if ancillaryFD != nil {
		if !c.isSock {
			return Response{}, gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindInvalidValue, "descriptor passing requires a socket connection")
		}
		if err := ioxfer.SendmsgFD(c.fd, []byte(line), *ancillaryFD); err != nil {
			return Response{}, err
		}
	} else if err := c.writeAll([]byte(line)); err != nil {
		return Response{}, err
	}

	return c.readResponse()
}

func (c *Conn) writeAll(p []byte) error {
	for len(p) > 0 {
		n, err := ioxfer.Write(c.fd, p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// readResponse reads lines until a terminating OK/ERR, dispatching
// INQUIRE through InquireHandler and accumulating S/D lines.
//
// The underlying descriptor is non-blocking, so a read is only attempted
// once Select has reported it ready; a zero-byte result at that point is
// therefore genuine EOF, not EAGAIN (see the identical reasoning in
// internal/engine/pipe's reactor handlers).
func (c *Conn) readResponse() (Response, error) {
	var resp Response
	chunk := make([]byte, 4096)
	for {
		var to *time.Duration
		if c.timeout > 0 {
			to = &c.timeout
		}
		ready, _, err := ioxfer.Select([]int{c.fd}, nil, to)
		if err != nil {
			return resp, err
		}
		if len(ready) == 0 {
			return resp, gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindTimeout, "timed out waiting for engine response")
		}

		n, err := ioxfer.Read(c.fd, chunk)
		if err != nil {
			return resp, err
		}
		if n == 0 {
			return resp, gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindConnectFailed, "engine closed the connection mid-response")
		}
		lines, ferr := c.buf.Feed(chunk[:n])
		if ferr != nil {
			return resp, ferr
		}
		for _, raw := range lines {
			al := statusproto.ParseAssuanLine(string(raw))
			switch al.Kind {
			case statusproto.AssuanStatus:
				resp.Status = append(resp.Status, al)
			case statusproto.AssuanData:
				resp.Data = append(resp.Data, al.Payload...)
			case statusproto.AssuanInquire:
				if err := c.handleInquire(al); err != nil {
					return resp, err
				}
			case statusproto.AssuanOK:
				resp.OK = true
				return resp, nil
			case statusproto.AssuanERR:
				resp.ErrCode = al.Code
				resp.ErrText = al.Text
				return resp, Translate(al.Code, al.Text)
			}
		}
	}
}

func (c *Conn) handleInquire(al statusproto.AssuanLine) error {
	if c.InquireHandler == nil {
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindInvalidResponse, "unanswered INQUIRE: "+al.Token)
	}
	payload, err := c.InquireHandler(al.Token, al.Args)
	if err != nil {
		return err
	}
	split := linebuf.SplitWriter{}
	for _, wire := range split.Split([]byte(statusproto.PercentEncode(payload))) {
		if werr := c.writeAll(append([]byte("D "), wire...)); werr != nil {
			return werr
		}
	}
	return c.writeAll([]byte("END\n"))
}

// Close closes the underlying descriptor.
func (c *Conn) Close() error {
	c.state = StateClosed
	return ioxfer.Close(c.fd)
}
