package assuan

import "strconv"

// Channel identifies which of the three Assuan data channels a
// descriptor is being registered for.
type Channel int

const (
	ChannelInput Channel = iota
	ChannelOutput
	ChannelMessage
)

func (ch Channel) verb() string {
	switch ch {
	case ChannelOutput:
		return "OUTPUT"
	case ChannelMessage:
		return "MESSAGE"
	default:
		return "INPUT"
	}
}

// SetFDInline registers fd for channel using the "FD=N" form: the
// descriptor is already open at number fd in the engine's own process,
// pre-arranged at spawn time the same way the pipe driver places
// descriptors at engine-chosen fd numbers.
func (c *Conn) SetFDInline(ch Channel, fd int) error {
	resp, err := c.Command(nil, ch.verb(), "FD="+strconv.Itoa(fd))
	if err != nil {
		return err
	}
	_ = resp
	return nil
}

// SetFDPassed registers fd for channel by sending the bare "FD" form
// with fd attached as ancillary data on the control socket, immediately
// preceding the command line itself.
func (c *Conn) SetFDPassed(ch Channel, fd int) error {
	resp, err := c.Command(&fd, ch.verb(), "FD")
	if err != nil {
		return err
	}
	_ = resp
	return nil
}

// Options carries the client identification values the engine expects
// before the first real command (per §4.7's OPTION negotiation).
type Options struct {
	Display   string
	TTYName   string
	TTYType   string
	LCCtype   string
	LCMessages string
}

// Negotiate sends one OPTION command per non-empty field in o.
func (c *Conn) Negotiate(o Options) error {
	pairs := []struct{ name, value string }{
		{"display", o.Display},
		{"ttyname", o.TTYName},
		{"ttytype", o.TTYType},
		{"lc-ctype", o.LCCtype},
		{"lc-messages", o.LCMessages},
	}
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		if err := c.Option(p.name, p.value); err != nil {
			return err
		}
	}
	return nil
}
