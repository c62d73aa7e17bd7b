package opstate

import (
	"github.com/gpgclient/gpgclient/internal/gpgerr"
	"github.com/gpgclient/gpgclient/internal/keymodel"
	"github.com/gpgclient/gpgclient/internal/statusproto"
)

// VerifyResult is the immutable record a Verify machine accumulates.
type VerifyResult struct {
	FileName   string
	Signatures []Signature
}

type verifyPhase int

const (
	verifyIdle verifyPhase = iota
	verifyInSignature
	verifyComplete
)

// Verify drives the verify status stream into a VerifyResult.
type Verify struct {
	phase      verifyPhase
	cur        *Signature
	sigs       []Signature
	fileName   string
	sawPKA     bool
	sawPlain   bool
	aborted    error
}

// NewVerify returns an idle Verify machine.
func NewVerify() *Verify { return &Verify{phase: verifyIdle} }

func (v *Verify) finalizeCurrent() {
	if v.cur == nil {
		return
	}
	v.cur.Summary = DeriveSummary(v.cur.Status, v.cur.Validity, v.cur.ValidityReason, v.cur.WrongKeyUsage)
	v.sigs = append(v.sigs, *v.cur)
	v.cur = nil
}

func (v *Verify) ensureCurrent() {
	if v.cur == nil {
		v.cur = &Signature{}
		v.phase = verifyInSignature
	}
}

// Feed processes one status line. It returns an error only when the
// operation must abort immediately (BadData, or InvalidStatus for an
// orphan NOTATION_DATA or a second PKA trust line on one signature).
func (v *Verify) Feed(line statusproto.Line) error {
	if v.aborted != nil {
		return v.aborted
	}
	switch line.Code {
	case statusproto.CodeNEWSIG:
		v.finalizeCurrent()
		v.cur = &Signature{}
		v.phase = verifyInSignature
		v.sawPKA = false

	case statusproto.CodeGOODSIG:
		v.ensureCurrent()
		v.cur.Status = SigStatusOK
		v.cur.Fingerprint = arg(line.Args, 0)

	case statusproto.CodeEXPSIG:
		v.ensureCurrent()
		v.cur.Status = SigStatusSigExpired
		v.cur.Fingerprint = arg(line.Args, 0)

	case statusproto.CodeEXPKEYSIG:
		v.ensureCurrent()
		v.cur.Status = SigStatusKeyExpired
		v.cur.Fingerprint = arg(line.Args, 0)

	case statusproto.CodeBADSIG:
		v.ensureCurrent()
		v.cur.Status = SigStatusBadSignature
		v.cur.Fingerprint = arg(line.Args, 0)

	case statusproto.CodeREVKEYSIG:
		v.ensureCurrent()
		v.cur.Status = SigStatusBadSignature
		v.cur.Fingerprint = arg(line.Args, 0)
		v.cur.ValidityReason = gpgerr.KindCertRevoked

	case statusproto.CodeERRSIG:
		v.ensureCurrent()
		v.cur.Fingerprint = arg(line.Args, 0)
		v.cur.PubkeyAlgo = arg(line.Args, 1)
		v.cur.HashAlgo = arg(line.Args, 2)
		// args[3] is sig-class, skipped.
		v.cur.Timestamp = parseI64(arg(line.Args, 4))
		switch arg(line.Args, 5) {
		case "4":
			v.cur.Status = SigStatusUnsupportedAlgorithm
		case "9":
			v.cur.Status = SigStatusNoPublicKey
		default:
			v.cur.Status = SigStatusGeneral
		}

	case statusproto.CodeVALIDSIG:
		if v.cur == nil {
			return nil
		}
		v.cur.Fingerprint = arg(line.Args, 0)
		v.cur.Timestamp = parseI64(arg(line.Args, 2))
		v.cur.ExpiryTimestamp = parseI64(arg(line.Args, 3))
		// args[4] sig version, args[5] reserved: both skipped.
		v.cur.PubkeyAlgo = arg(line.Args, 6)
		v.cur.HashAlgo = arg(line.Args, 7)

	case statusproto.CodeNODATA, statusproto.CodeUNEXPECTED:
		v.ensureCurrent()
		v.cur.Status = SigStatusNoData

	case statusproto.CodeNOTATION_NAME:
		v.ensureCurrent()
		name := statusproto.PercentDecode(arg(line.Args, 0))
		v.cur.Notations = append(v.cur.Notations, Notation{Name: string(name)})

	case statusproto.CodeNOTATION_DATA:
		if v.cur == nil || len(v.cur.Notations) == 0 {
			v.aborted = gpgerr.New(gpgerr.SourceEngine, gpgerr.KindInvalidStatus, "NOTATION_DATA without a preceding NOTATION_NAME")
			return v.aborted
		}
		last := &v.cur.Notations[len(v.cur.Notations)-1]
		last.Value += string(statusproto.PercentDecode(arg(line.Args, 0)))

	case statusproto.CodePOLICY_URL:
		v.ensureCurrent()
		v.cur.Notations = append(v.cur.Notations, Notation{
			Value: string(statusproto.PercentDecode(arg(line.Args, 0))),
		})

	case statusproto.CodeTRUST_UNDEFINED:
		v.setValidity(keymodel.ValidityUndefined, line.Args)
	case statusproto.CodeTRUST_NEVER:
		v.setValidity(keymodel.ValidityNever, line.Args)
	case statusproto.CodeTRUST_MARGINAL:
		v.setValidity(keymodel.ValidityMarginal, line.Args)
	case statusproto.CodeTRUST_FULLY:
		v.setValidity(keymodel.ValidityFull, line.Args)
	case statusproto.CodeTRUST_ULTIMATE:
		v.setValidity(keymodel.ValidityUltimate, line.Args)

	case statusproto.CodePKA_TRUST_GOOD:
		if !v.setPKATrust('g', line.Args) {
			v.aborted = gpgerr.New(gpgerr.SourceEngine, gpgerr.KindInvalidStatus, "duplicate PKA_TRUST_GOOD/PKA_TRUST_BAD for one signature")
			return v.aborted
		}
	case statusproto.CodePKA_TRUST_BAD:
		if !v.setPKATrust('b', line.Args) {
			v.aborted = gpgerr.New(gpgerr.SourceEngine, gpgerr.KindInvalidStatus, "duplicate PKA_TRUST_GOOD/PKA_TRUST_BAD for one signature")
			return v.aborted
		}

	case statusproto.CodeERROR:
		where := arg(line.Args, 0)
		switch where {
		case "proc_pkt.plaintext":
			v.aborted = gpgerr.New(gpgerr.SourceEngine, gpgerr.KindBadData, "plaintext processing error")
			return v.aborted
		case "verify.findkey":
			if v.cur != nil {
				v.cur.Status = SigStatusNoPublicKey
			}
		case "verify.keyusage":
			if v.cur != nil {
				v.cur.WrongKeyUsage = true
			}
		}

	case statusproto.CodePLAINTEXT:
		if v.sawPlain {
			v.aborted = gpgerr.New(gpgerr.SourceEngine, gpgerr.KindBadData, "duplicate PLAINTEXT in verify")
			return v.aborted
		}
		v.sawPlain = true
		v.fileName = arg(line.Args, 1)
	}
	return nil
}

func (v *Verify) setValidity(val keymodel.Validity, args []string) {
	v.ensureCurrent()
	v.cur.Validity = val
	v.cur.haveValidity = true
	if a := arg(args, 0); a != "" {
		v.cur.ValidityReason = decodeValidityReason(a)
	}
}

func decodeValidityReason(code string) gpgerr.Kind {
	switch code {
	case "8": // placeholder mapping kept narrow; only CRL/revocation reasons are
		// distinguished by the summary table, everything else is General.
		return gpgerr.KindCRLTooOld
	case "9":
		return gpgerr.KindCertRevoked
	default:
		return gpgerr.KindGeneral
	}
}

// setPKATrust records one PKA_TRUST_GOOD/PKA_TRUST_BAD notification for
// the current signature. It returns false if this is a second such
// notification for the same signature, a protocol violation the caller
// must treat as fatal.
func (v *Verify) setPKATrust(mark byte, args []string) bool {
	v.ensureCurrent()
	if v.sawPKA {
		return false
	}
	v.sawPKA = true
	v.cur.PKATrust = mark
	addr := arg(args, 0)
	if i := indexByte(addr, ' '); i >= 0 {
		addr = addr[:i]
	}
	v.cur.PKAAddress = addr
	return true
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// Finish finalizes any in-flight signature and returns the result. A
// trailing signature created by a bare NEWSIG with no further detail is
// discarded rather than emitted empty.
func (v *Verify) Finish() (VerifyResult, error) {
	if v.aborted != nil {
		return VerifyResult{}, v.aborted
	}
	if v.cur != nil && v.cur.Fingerprint == "" && !v.cur.haveValidity {
		v.cur = nil
	}
	v.finalizeCurrent()
	return VerifyResult{FileName: v.fileName, Signatures: v.sigs}, nil
}
