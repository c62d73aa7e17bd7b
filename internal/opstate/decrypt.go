package opstate

import (
	"github.com/gpgclient/gpgclient/internal/gpgerr"
	"github.com/gpgclient/gpgclient/internal/statusproto"
)

// DecryptRecipient is one recipient notification observed while
// decrypting.
type DecryptRecipient struct {
	KeyID      string
	PubkeyAlgo string
	Status     gpgerr.Kind
}

// DecryptResult is the immutable record a Decrypt machine accumulates.
type DecryptResult struct {
	UnsupportedAlgorithm string
	WrongKeyUsage        bool
	FileName             string
	Recipients           []DecryptRecipient
}

// Decrypt drives the decrypt status stream into a DecryptResult.
type Decrypt struct {
	okay   bool
	failed bool
	res    DecryptResult
}

// NewDecrypt returns a fresh Decrypt machine.
func NewDecrypt() *Decrypt { return &Decrypt{} }

// Feed processes one status line.
func (d *Decrypt) Feed(line statusproto.Line) error {
	switch line.Code {
	case statusproto.CodeENC_TO:
		d.res.Recipients = append(d.res.Recipients, DecryptRecipient{
			KeyID:      arg(line.Args, 0),
			PubkeyAlgo: arg(line.Args, 1),
		})
	case statusproto.CodeNODATA:
		d.failed = true
	case statusproto.CodePLAINTEXT:
		d.okay = true
		d.res.FileName = arg(line.Args, 1)
	case statusproto.CodeERROR:
		if arg(line.Args, 0) == "verify.keyusage" {
			d.res.WrongKeyUsage = true
		}
	}
	return nil
}

// MarkOkay and MarkFailed set the okay and failed flags directly,
// independent of a status token.
func (d *Decrypt) MarkOkay()  { d.okay = true }
func (d *Decrypt) MarkFailed() { d.failed = true }

// Finish finalizes the result.
func (d *Decrypt) Finish() (DecryptResult, error) {
	if d.failed {
		return d.res, gpgerr.New(gpgerr.SourceEngine, gpgerr.KindDecryptionFailed, "decryption failed")
	}
	if !d.okay {
		return d.res, gpgerr.New(gpgerr.SourceEngine, gpgerr.KindNoData, "no plaintext produced")
	}
	return d.res, nil
}
