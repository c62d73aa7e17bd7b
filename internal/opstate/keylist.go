package opstate

import (
	"strconv"
	"strings"

	"github.com/gpgclient/gpgclient/internal/keymodel"
)

// KeylistResult is the immutable record a Keylist machine accumulates.
type KeylistResult struct {
	Truncated bool
}

// Keylist parses colon records into keymodel.Key values, flushing a
// completed primary record each time a new one begins. Completed keys
// are appended to Keys as they flush; callers drain Keys (mirroring the
// context's key queue / NEXT_KEY event) after each Feed call.
type Keylist struct {
	cur     *keymodel.Key
	Keys    []*keymodel.Key
	res     KeylistResult
}

// NewKeylist returns a fresh Keylist machine.
func NewKeylist() *Keylist { return &Keylist{} }

func (k *Keylist) flush() {
	if k.cur != nil {
		k.Keys = append(k.Keys, k.cur)
		k.cur = nil
	}
}

// Feed parses one colon record, already split on ':' into its fields by
// the caller (the pipe driver's colon handler, which also decodes \xHH
// escapes).
func (k *Keylist) Feed(fields []string) {
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "pub", "sec", "crt", "crs":
		k.flush()
		k.cur = &keymodel.Key{Secret: fields[0] == "sec" || fields[0] == "crs"}
		if fields[0] == "crt" || fields[0] == "crs" {
			k.cur.Protocol = keymodel.ProtocolCMS
		}
		k.cur.Subkeys = append(k.cur.Subkeys, parseSubkeyFields(fields, true))

	case "sub", "ssb":
		if k.cur == nil {
			return
		}
		k.cur.Subkeys = append(k.cur.Subkeys, parseSubkeyFields(fields, false))

	case "uid":
		if k.cur == nil {
			return
		}
		k.cur.UserIDs = append(k.cur.UserIDs, parseUIDFields(fields))

	case "fpr":
		if k.cur == nil || len(k.cur.Subkeys) == 0 {
			return
		}
		if fpr := field(fields, 9); fpr != "" {
			k.cur.Subkeys[len(k.cur.Subkeys)-1].Fingerprint = fpr
		}

	case "sig":
		// Signature cross-certification records are not surfaced on the
		// Key value today; nothing to accumulate.
	}
}

func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}

func parseSubkeyFields(fields []string, primary bool) keymodel.Subkey {
	sk := keymodel.Subkey{
		Algorithm: field(fields, 3),
		KeyID:     field(fields, 4),
		Created:   parseI64(field(fields, 5)),
		Expires:   parseI64(field(fields, 6)),
	}
	if n, err := strconv.Atoi(field(fields, 2)); err == nil {
		sk.Length = uint32(n)
	}
	applyTrustFlags(&sk, field(fields, 1))
	applyCapabilityLetters(&sk, field(fields, 11))
	return sk
}

func applyTrustFlags(sk *keymodel.Subkey, flags string) {
	for _, c := range flags {
		switch c {
		case 'r':
			sk.Revoked = true
		case 'e':
			sk.Expired = true
		case 'd':
			sk.Disabled = true
		case 'i':
			sk.Invalid = true
		}
	}
}

// applyCapabilityLetters sets capability bits on sk from the colon
// record's capability-letter field. Lowercase marks this subkey's own
// capability; uppercase (conventionally only present on the primary's
// record, aggregating the whole key) is treated the same way here, since
// keymodel derives a key's aggregate capability from its usable subkeys
// via Key.CanEncrypt/CanSign rather than storing it redundantly.
func applyCapabilityLetters(sk *keymodel.Subkey, letters string) {
	for _, c := range letters {
		switch c {
		case 'e':
			sk.Capabilities |= keymodel.CapEncrypt
		case 's':
			sk.Capabilities |= keymodel.CapSign
		case 'c':
			sk.Capabilities |= keymodel.CapCertify
		case 'a':
			sk.Capabilities |= keymodel.CapAuthenticate
		case 'E':
			sk.Capabilities |= keymodel.CapEncrypt
		case 'S':
			sk.Capabilities |= keymodel.CapSign
		case 'C':
			sk.Capabilities |= keymodel.CapCertify
		case 'A':
			sk.Capabilities |= keymodel.CapAuthenticate
		}
	}
}

func parseUIDFields(fields []string) keymodel.UserID {
	uid := keymodel.UserID{Raw: decodeBackslashEscapes(field(fields, 9))}
	parseRawUID(&uid)
	for _, c := range field(fields, 1) {
		switch c {
		case 'r':
			uid.Revoked = true
		case 'i':
			uid.Invalid = true
		case 'n':
			uid.Validity = keymodel.ValidityNever
		case 'm':
			uid.Validity = keymodel.ValidityMarginal
		case 'f':
			uid.Validity = keymodel.ValidityFull
		case 'u':
			uid.Validity = keymodel.ValidityUltimate
		}
	}
	return uid
}

// parseRawUID splits "Name (Comment) <email>" into its parts, leaving
// unmatched fields empty.
func parseRawUID(uid *keymodel.UserID) {
	s := uid.Raw
	if i := strings.IndexByte(s, '<'); i >= 0 {
		if j := strings.IndexByte(s[i:], '>'); j >= 0 {
			uid.Email = s[i+1 : i+j]
			s = s[:i] + s[i+j+1:]
		}
	}
	if i := strings.IndexByte(s, '('); i >= 0 {
		if j := strings.IndexByte(s[i:], ')'); j >= 0 {
			uid.Comment = strings.TrimSpace(s[i+1 : i+j])
			s = s[:i] + s[i+j+1:]
		}
	}
	uid.Name = strings.TrimSpace(s)
}

// decodeBackslashEscapes decodes "\xHH" sequences to raw bytes and a
// literal "\0" to a backslash-nul pair, matching the colon record grammar
// (a real nul cannot be stored in the field itself).
func decodeBackslashEscapes(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '0' && (i+2 >= len(s) || s[i+2] != 'x') {
			b.WriteByte('\\')
			b.WriteByte(0)
			i++
			continue
		}
		if i+3 < len(s) && s[i+1] == 'x' {
			if hi, ok1 := hexDigit(s[i+2]); ok1 {
				if lo, ok2 := hexDigit(s[i+3]); ok2 {
					b.WriteByte(hi<<4 | lo)
					i += 3
					continue
				}
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// Finish flushes any remaining primary record and returns the result.
func (k *Keylist) Finish() KeylistResult {
	k.flush()
	return k.res
}

// MarkTruncated records that the engine reported a truncated listing.
func (k *Keylist) MarkTruncated() { k.res.Truncated = true }
