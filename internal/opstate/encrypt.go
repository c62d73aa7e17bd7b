package opstate

import (
	"fmt"
	"strings"

	"github.com/gpgclient/gpgclient/internal/dataobj"
	"github.com/gpgclient/gpgclient/internal/gpgerr"
	"github.com/gpgclient/gpgclient/internal/statusproto"
)

// InvalidRecipient is one INV_RECP record.
type InvalidRecipient struct {
	Fingerprint string
	Reason      string
}

// EncryptResult is the immutable record an Encrypt machine accumulates.
type EncryptResult struct {
	InvalidRecipients []InvalidRecipient
}

// Encrypt drives the encrypt status stream into an EncryptResult.
type Encrypt struct {
	res     EncryptResult
	noRecps int
}

// NewEncrypt returns a fresh Encrypt machine.
func NewEncrypt() *Encrypt { return &Encrypt{} }

func (e *Encrypt) Feed(line statusproto.Line) error {
	switch line.Code {
	case statusproto.CodeINV_RECP:
		e.res.InvalidRecipients = append(e.res.InvalidRecipients, InvalidRecipient{
			Reason:      arg(line.Args, 0),
			Fingerprint: arg(line.Args, 1),
		})
	case statusproto.CodeNO_RECP:
		e.noRecps++
	}
	return nil
}

// Finish finalizes the result. On failure it also returns an XML info
// payload enumerating each invalid recipient, built with
// dataobj.EscapeXML per the operation state machines' shared formatting
// helper.
func (e *Encrypt) Finish() (EncryptResult, string, error) {
	if e.noRecps > 0 {
		return e.res, "", gpgerr.New(gpgerr.SourceEngine, gpgerr.KindNoRecipients, "no recipients")
	}
	if len(e.res.InvalidRecipients) > 0 {
		var b strings.Builder
		b.WriteString("<invalid-recipients>")
		for _, r := range e.res.InvalidRecipients {
			fmt.Fprintf(&b, "<recipient reason=%q>%s</recipient>", r.Reason, dataobj.EscapeXML(r.Fingerprint))
		}
		b.WriteString("</invalid-recipients>")
		return e.res, b.String(), gpgerr.New(gpgerr.SourceEngine, gpgerr.KindInvalidRecipients, "one or more recipients were invalid")
	}
	return e.res, "", nil
}
