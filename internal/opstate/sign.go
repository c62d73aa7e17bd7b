package opstate

import (
	"github.com/gpgclient/gpgclient/internal/gpgerr"
	"github.com/gpgclient/gpgclient/internal/statusproto"
)

// SigMode distinguishes how a created signature was applied.
type SigMode int

const (
	SigModeNormal SigMode = iota
	SigModeDetached
	SigModeCleartext
)

// CreatedSignature is one SIG_CREATED record.
type CreatedSignature struct {
	Mode       SigMode
	PubkeyAlgo string
	HashAlgo   string
	Class      string
	Timestamp  int64
	Fingerprint string
}

// InvalidSigner is one INV_SGNR record.
type InvalidSigner struct {
	Fingerprint string
	Reason      string
}

// SignResult is the immutable record a Sign machine accumulates.
type SignResult struct {
	Signatures      []CreatedSignature
	InvalidSigners  []InvalidSigner
}

// Sign drives the sign status stream into a SignResult.
type Sign struct {
	res SignResult
}

// NewSign returns a fresh Sign machine.
func NewSign() *Sign { return &Sign{} }

func (s *Sign) Feed(line statusproto.Line) error {
	switch line.Code {
	case statusproto.CodeSIG_CREATED:
		mode := SigModeNormal
		switch arg(line.Args, 0) {
		case "D":
			mode = SigModeDetached
		case "C":
			mode = SigModeCleartext
		}
		s.res.Signatures = append(s.res.Signatures, CreatedSignature{
			Mode:        mode,
			PubkeyAlgo:  arg(line.Args, 1),
			HashAlgo:    arg(line.Args, 2),
			Class:       arg(line.Args, 3),
			Timestamp:   parseI64(arg(line.Args, 4)),
			Fingerprint: arg(line.Args, 5),
		})
	case statusproto.CodeINV_SGNR:
		s.res.InvalidSigners = append(s.res.InvalidSigners, InvalidSigner{
			Reason:      arg(line.Args, 0),
			Fingerprint: arg(line.Args, 1),
		})
	}
	return nil
}

// Finish finalizes the result.
func (s *Sign) Finish() (SignResult, error) {
	if len(s.res.InvalidSigners) > 0 {
		return s.res, gpgerr.New(gpgerr.SourceEngine, gpgerr.KindUnusableSecretKey, "one or more signers were unusable")
	}
	return s.res, nil
}
