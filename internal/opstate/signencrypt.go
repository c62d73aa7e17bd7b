package opstate

import "github.com/gpgclient/gpgclient/internal/statusproto"

// SignEncryptResult is the immutable record a SignEncrypt machine
// accumulates: the union of what an Encrypt and a Sign machine would
// each report off the same status stream.
type SignEncryptResult struct {
	InvalidRecipients []InvalidRecipient
	InvalidSigners    []InvalidSigner
	Signatures        []CreatedSignature
}

// SignEncrypt drives the combined sign+encrypt status stream, which is
// simply the encrypt and sign vocabularies interleaved on one channel,
// by handing every line to both an Encrypt and a Sign machine in turn.
type SignEncrypt struct {
	enc *Encrypt
	sig *Sign
}

// NewSignEncrypt returns a fresh SignEncrypt machine.
func NewSignEncrypt() *SignEncrypt {
	return &SignEncrypt{enc: NewEncrypt(), sig: NewSign()}
}

func (se *SignEncrypt) Feed(line statusproto.Line) error {
	if err := se.enc.Feed(line); err != nil {
		return err
	}
	return se.sig.Feed(line)
}

// Finish finalizes both halves, preferring the encrypt side's error (no
// recipients / invalid recipients) over the sign side's (unusable
// signer) when both fire, matching encrypt_sign_status_handler's order
// of composition: encrypt's handler runs first.
func (se *SignEncrypt) Finish() (SignEncryptResult, string, error) {
	encRes, infoXML, encErr := se.enc.Finish()
	sigRes, sigErr := se.sig.Finish()
	res := SignEncryptResult{
		InvalidRecipients: encRes.InvalidRecipients,
		InvalidSigners:    sigRes.InvalidSigners,
		Signatures:        sigRes.Signatures,
	}
	if encErr != nil {
		return res, infoXML, encErr
	}
	return res, infoXML, sigErr
}
