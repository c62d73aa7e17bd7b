package opstate

import "github.com/gpgclient/gpgclient/internal/statusproto"

// EditPrompt is one GET_BOOL/GET_LINE/GET_HIDDEN prompt forwarded to the
// caller's edit callback.
type EditPrompt struct {
	Code    statusproto.Code
	Keyword string
}

// EditCallback answers one prompt. ok is false when the callback has no
// reply, in which case the driver sends a bare newline to advance.
type EditCallback func(p EditPrompt) (reply string, ok bool)

// Edit routes GET_BOOL/GET_LINE/GET_HIDDEN status lines to a caller
// callback; it shares the same prompt-routing shape the passphrase
// subprotocol in internal/gpgctx uses.
type Edit struct {
	cb EditCallback
}

// NewEdit returns an Edit machine wired to cb.
func NewEdit(cb EditCallback) *Edit { return &Edit{cb: cb} }

// Feed inspects a status line and, if it is a prompt, returns the reply
// line to write back to the engine (including its trailing newline).
// ok is false if the line was not a prompt this machine handles.
func (e *Edit) Feed(line statusproto.Line) (reply string, ok bool) {
	switch line.Code {
	case statusproto.CodeGET_BOOL, statusproto.CodeGET_LINE, statusproto.CodeGET_HIDDEN:
	default:
		return "", false
	}
	prompt := EditPrompt{Code: line.Code, Keyword: arg(line.Args, 0)}
	if e.cb == nil {
		return "\n", true
	}
	reply, answered := e.cb(prompt)
	if !answered {
		return "\n", true
	}
	if len(reply) == 0 || reply[len(reply)-1] != '\n' {
		reply += "\n"
	}
	return reply, true
}
