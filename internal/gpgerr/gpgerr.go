// Package gpgerr implements the runtime's closed error taxonomy.
//
// The underlying engines report failures in two incompatible schemes (a
// legacy integer and a later (source, code) pair); this package collapses
// both into a single algebraic error type with a stable Kind for callers to
// switch on, and a Source for diagnostics only.
package gpgerr

import "fmt"

// Source identifies which subsystem raised an Error.
type Source int

const (
	SourceCore Source = iota
	SourceEngine
	SourceAssuan
	SourceTransport
)

func (s Source) String() string {
	switch s {
	case SourceEngine:
		return "engine"
	case SourceAssuan:
		return "assuan"
	case SourceTransport:
		return "transport"
	default:
		return "core"
	}
}

// Kind is one member of the closed taxonomy from the specification's
// error handling design. Kinds are never extended at runtime; unmapped
// engine conditions fold to KindGeneral.
type Kind int

const (
	KindNone Kind = iota

	// Input validation
	KindInvalidValue
	KindInvalidEngine
	KindNoData
	KindNoRecipients
	KindInvalidRecipients
	KindUnusableSecretKey
	KindInvalidKey

	// Protocol
	KindInvalidResponse
	KindLineTooLong
	KindLineNotTerminated
	KindUnexpectedCommand
	KindInvalidStatus
	KindBadData

	// Transport
	KindPipeError
	KindReadError
	KindWriteError
	KindExecError
	KindConnectFailed
	KindAcceptFailed

	// Operation
	KindDecryptionFailed
	KindBadSignature
	KindBadPassphrase
	KindSigExpired
	KindKeyExpired
	KindNoPublicKey
	KindWrongKeyUsage
	KindUnsupportedAlgorithm
	KindCertRevoked
	KindNoCRL
	KindCRLTooOld

	// System
	KindOutOfCore
	KindCanceled
	KindGeneral
	KindNotImplemented
	KindTimeout
	KindFileError

	// Sentinel
	KindEOF
)

var kindNames = map[Kind]string{
	KindNone:                 "none",
	KindInvalidValue:         "invalid-value",
	KindInvalidEngine:        "invalid-engine",
	KindNoData:               "no-data",
	KindNoRecipients:         "no-recipients",
	KindInvalidRecipients:    "invalid-recipients",
	KindUnusableSecretKey:    "unusable-secret-key",
	KindInvalidKey:           "invalid-key",
	KindInvalidResponse:      "invalid-response",
	KindLineTooLong:          "line-too-long",
	KindLineNotTerminated:    "line-not-terminated",
	KindUnexpectedCommand:    "unexpected-command",
	KindInvalidStatus:        "invalid-status",
	KindBadData:              "bad-data",
	KindPipeError:            "pipe-error",
	KindReadError:            "read-error",
	KindWriteError:           "write-error",
	KindExecError:            "exec-error",
	KindConnectFailed:        "connect-failed",
	KindAcceptFailed:         "accept-failed",
	KindDecryptionFailed:     "decryption-failed",
	KindBadSignature:         "bad-signature",
	KindBadPassphrase:        "bad-passphrase",
	KindSigExpired:           "sig-expired",
	KindKeyExpired:           "key-expired",
	KindNoPublicKey:          "no-public-key",
	KindWrongKeyUsage:        "wrong-key-usage",
	KindUnsupportedAlgorithm: "unsupported-algorithm",
	KindCertRevoked:          "cert-revoked",
	KindNoCRL:                "no-crl",
	KindCRLTooOld:            "crl-too-old",
	KindOutOfCore:            "out-of-core",
	KindCanceled:             "canceled",
	KindGeneral:              "general",
	KindNotImplemented:       "not-implemented",
	KindTimeout:              "timeout",
	KindFileError:            "file-error",
	KindEOF:                  "eof",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error is the runtime's single error type. Source is diagnostic only;
// callers should branch on Kind.
type Error struct {
	Source Source
	Kind   Kind
	Msg    string
	Err    error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %s", e.Source, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Source, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Source, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is against a bare Kind sentinel or another *Error
// with the same Kind.
func (e *Error) Is(target error) bool {
	if other, ok := target.(*Error); ok {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an Error with no wrapped cause.
func New(src Source, kind Kind, msg string) *Error {
	return &Error{Source: src, Kind: kind, Msg: msg}
}

// Wrap constructs an Error that wraps an underlying cause.
func Wrap(src Source, kind Kind, msg string, err error) *Error {
	return &Error{Source: src, Kind: kind, Msg: msg, Err: err}
}

// Sentinel is a zero-message Error usable with errors.Is, e.g.
// errors.Is(err, gpgerr.Sentinel(gpgerr.KindEOF)).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Of reports the Kind of err if it (or something it wraps) is an *Error,
// else KindGeneral.
func Of(err error) Kind {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind
	}
	return KindGeneral
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
