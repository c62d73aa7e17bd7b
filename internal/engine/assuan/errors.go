package assuan

import "github.com/gpgclient/gpgclient/internal/gpgerr"

// libgpg-error error codes (low 16 bits of the value an Assuan ERR line
// carries), for the subset this driver's engines actually emit.
const (
	errGeneral           = 1
	errUnknownCommand    = 3
	errInvalidValue      = 14
	errNotImplemented    = 69
	errBadSignature      = 33
	errNoPublicKey       = 37
	errBadPassphrase     = 11
	errCanceled          = 99
	errNoData            = 16
	errDecryptFailed      = 152
	errNoRecipients      = 149
	errInvalidRecipient  = 150
	errWrongKeyUsage     = 156
	errCertRevoked       = 153
	errCertExpired       = 154
	errNoCRLKnown        = 158
	errCRLTooOld         = 159
	errUnsupportedAlgo   = 51
	errAmbiguousName     = 71
	errTimeout           = 62
)

// Translate maps one Assuan ERR code (and its trailing text, used only
// for a couple of codes libgpg-error overloads) to the runtime's closed
// error taxonomy.
func Translate(code int, text string) error {
	// libgpg-error packs a source into the high bits; the driver only
	// cares about the low 16-bit error code.
	low := code & 0xFFFF
	switch low {
	case errNoData:
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindNoData, text)
	case errNoRecipients:
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindNoRecipients, text)
	case errInvalidRecipient:
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindInvalidRecipients, text)
	case errBadPassphrase:
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindBadPassphrase, text)
	case errBadSignature:
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindBadSignature, text)
	case errNoPublicKey:
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindNoPublicKey, text)
	case errDecryptFailed:
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindDecryptionFailed, text)
	case errWrongKeyUsage:
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindWrongKeyUsage, text)
	case errCertRevoked:
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindCertRevoked, text)
	case errCertExpired:
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindKeyExpired, text)
	case errNoCRLKnown:
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindNoCRL, text)
	case errCRLTooOld:
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindCRLTooOld, text)
	case errUnsupportedAlgo:
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindUnsupportedAlgorithm, text)
	case errInvalidValue, errAmbiguousName:
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindInvalidValue, text)
	case errUnknownCommand, errNotImplemented:
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindNotImplemented, text)
	case errCanceled:
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindCanceled, text)
	case errTimeout:
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindTimeout, text)
	case errGeneral:
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindGeneral, text)
	default:
		return gpgerr.New(gpgerr.SourceAssuan, gpgerr.KindGeneral, text)
	}
}
