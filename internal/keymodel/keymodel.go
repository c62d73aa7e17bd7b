// Package keymodel defines the immutable, reference-counted Key, Subkey,
// UserID, and TrustItem value types shared across every operation's
// result records.
package keymodel

import "sync/atomic"

// Protocol identifies which engine family produced a Key.
type Protocol int

const (
	ProtocolOpenPGP Protocol = iota
	ProtocolCMS
)

// Validity is the validity enum attached to a UserID or a signature.
type Validity int

const (
	ValidityUnknown Validity = iota
	ValidityUndefined
	ValidityNever
	ValidityMarginal
	ValidityFull
	ValidityUltimate
)

// Capability flags for a subkey or, aggregated, for a key.
type Capability uint8

const (
	CapEncrypt Capability = 1 << iota
	CapSign
	CapCertify
	CapAuthenticate
)

// Subkey is one key component: a primary or a subordinate signing/
// encryption key.
type Subkey struct {
	Fingerprint string
	KeyID       string
	Algorithm   string
	Length      uint32
	Created     int64 // seconds since epoch; -1 invalid, 0 unavailable
	Expires     int64

	Capabilities Capability
	Revoked      bool
	Expired      bool
	Disabled     bool
	Invalid      bool
	Secret       bool

	// CardSerial is the smartcard serial number backing this subkey's
	// secret material, empty when the key is not smartcard-backed.
	CardSerial string
}

// UserID is one user-ID record attached to a Key.
type UserID struct {
	Raw     string
	Name    string
	Email   string
	Comment string

	Validity Validity
	Revoked  bool
	Invalid  bool
}

// Key is a primary key with its subkeys and user-IDs. Keys are reference-
// counted and immutable once populated; looked up by fingerprint through
// internal/keycache.
type Key struct {
	refs int32

	Protocol Protocol
	Subkeys  []Subkey
	UserIDs  []UserID

	// CMS-profile fields.
	IssuerSerial string
	IssuerName   string
	ChainID      string

	Secret bool
}

// Fingerprint returns the primary subkey's fingerprint, or "" if the key
// has no subkeys.
func (k *Key) Fingerprint() string {
	if len(k.Subkeys) == 0 {
		return ""
	}
	return k.Subkeys[0].Fingerprint
}

// CanEncrypt reports whether any subkey can encrypt and is usable (not
// revoked/expired/disabled/invalid).
func (k *Key) CanEncrypt() bool { return k.hasUsableCapability(CapEncrypt) }

// CanSign reports whether any subkey can sign and is usable.
func (k *Key) CanSign() bool { return k.hasUsableCapability(CapSign) }

func (k *Key) hasUsableCapability(c Capability) bool {
	for _, sk := range k.Subkeys {
		if sk.Capabilities&c == 0 {
			continue
		}
		if sk.Revoked || sk.Expired || sk.Disabled || sk.Invalid {
			continue
		}
		return true
	}
	return false
}

// Ref increments the key's reference count and returns the same key,
// mirroring the C original's manual refcounting at the type level.
func (k *Key) Ref() *Key {
	atomic.AddInt32(&k.refs, 1)
	return k
}

// Unref decrements the reference count. It never frees k: Go's garbage
// collector owns reclamation; Unref exists so callers that mirror the
// acquire/release discipline of the original have a correct no-op to
// call, and so internal/keycache can track eviction safety (the cache's
// own strong reference keeps a key alive independent of caller Unrefs).
func (k *Key) Unref() {
	atomic.AddInt32(&k.refs, -1)
}

// RefCount returns the current reference count, for tests and the cache's
// eviction bookkeeping.
func (k *Key) RefCount() int32 {
	return atomic.LoadInt32(&k.refs)
}

// TrustItem describes the trust relationship between a key (or user-ID)
// and the local trust database.
type TrustItem struct {
	refs int32

	Level       int
	KeyID       string // 16-hex
	Kind        TrustItemKind
	OwnerTrust  byte
	Validity    byte
	DisplayName string
}

// TrustItemKind distinguishes a trust-item's subject.
type TrustItemKind int

const (
	TrustItemKey TrustItemKind = 1
	TrustItemUID TrustItemKind = 2
)

// Ref/Unref mirror Key's reference-counting discipline.
func (t *TrustItem) Ref() *TrustItem  { atomic.AddInt32(&t.refs, 1); return t }
func (t *TrustItem) Unref()           { atomic.AddInt32(&t.refs, -1) }
func (t *TrustItem) RefCount() int32  { return atomic.LoadInt32(&t.refs) }
