// Package opstate implements the per-operation result builders: one
// state-machine type per operation, each consuming statusproto.Code
// values off a context's status channel and accumulating exactly one
// immutable result record.
//
// The accumulate-then-finalize shape of each machine is grounded on the
// teacher's internal/escrow package (tri-factor accumulation across
// independent checks before a final verdict) and on
// internal/protocol/session.go's explicit state enum driving sequenced
// transitions; the transition semantics themselves are grounded directly
// on the GPGME C sources (gpgme/verify.c, decrypt.c, sign.c, encrypt.c,
// keylist.c, import.c, genkey.c, edit.c, trustlist.c), which this package
// re-expresses as Go types rather than translates line for line.
package opstate

import (
	"strconv"

	"github.com/gpgclient/gpgclient/internal/gpgerr"
	"github.com/gpgclient/gpgclient/internal/keymodel"
)

// SigSummary is a bitset describing a verified signature's overall
// disposition.
type SigSummary uint32

const (
	SummaryValid SigSummary = 1 << iota
	SummaryGreen
	SummaryRed
	SummaryKeyRevoked
	SummaryKeyExpired
	SummarySigExpired
	SummaryKeyMissing
	SummaryCRLMissing
	SummaryCRLTooOld
	SummaryBadPolicy
	SummarySysError
)

// SigStatus is the per-signature status kind, independent of the
// aggregate summary bitset.
type SigStatus int

const (
	SigStatusOK SigStatus = iota
	SigStatusBadSignature
	SigStatusNoPublicKey
	SigStatusSigExpired
	SigStatusKeyExpired
	SigStatusNoData
	SigStatusGeneral
	SigStatusUnsupportedAlgorithm
)

// Notation is one notation-data or policy-URL attachment on a signature.
type Notation struct {
	Name  string // empty for a policy URL
	Value string
}

// Signature is one verified signature.
type Signature struct {
	Fingerprint     string
	Summary         SigSummary
	Status          SigStatus
	Timestamp       int64
	ExpiryTimestamp int64
	PubkeyAlgo      string
	HashAlgo        string
	Validity        keymodel.Validity
	ValidityReason  gpgerr.Kind
	WrongKeyUsage   bool
	PKATrust        byte // 0 none, 'g' good, 'b' bad
	PKAAddress      string
	Notations       []Notation

	haveValidity bool
}

// DeriveSummary computes the bitset table from §4.8 of the design: a
// deterministic function of status, validity, and wrong-key-usage.
func DeriveSummary(status SigStatus, validity keymodel.Validity, validityReason gpgerr.Kind, wrongKeyUsage bool) SigSummary {
	var s SigSummary
	okLike := status == SigStatusOK || status == SigStatusSigExpired || status == SigStatusKeyExpired

	if (validity == keymodel.ValidityFull || validity == keymodel.ValidityUltimate) && okLike {
		s |= SummaryGreen
	}
	if validity == keymodel.ValidityNever && okLike {
		s |= SummaryRed
	}
	if status == SigStatusBadSignature {
		s |= SummaryRed
	}
	if status == SigStatusSigExpired {
		s |= SummarySigExpired
	}
	if status == SigStatusKeyExpired {
		s |= SummaryKeyExpired
	}
	if status == SigStatusNoPublicKey {
		s |= SummaryKeyMissing
	}
	if status != SigStatusOK && status != SigStatusBadSignature {
		s |= SummarySysError
	}
	if validityReason == gpgerr.KindCRLTooOld && validity == keymodel.ValidityUnknown {
		s |= SummaryCRLTooOld
	}
	if validityReason == gpgerr.KindCertRevoked {
		s |= SummaryKeyRevoked
	}
	if wrongKeyUsage {
		s |= SummaryBadPolicy
	}
	if s&SummaryGreen != 0 && s == SummaryGreen {
		s |= SummaryValid
	}
	return s
}

func parseI64(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// arg returns args[i], or "" if out of range.
func arg(args []string, i int) string {
	if i < 0 || i >= len(args) {
		return ""
	}
	return args[i]
}
