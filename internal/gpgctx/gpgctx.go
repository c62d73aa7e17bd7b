// Package gpgctx implements the Context type: the per-operation handle
// that owns the chosen protocol, mutable flags, the signer-key set,
// callbacks, operation-data slots, and the context's own wait
// registration. Exactly one operation may be pending on a context at a
// time.
//
// The passphrase and progress subprotocols are implemented here because
// both are cross-cutting concerns the engine drivers dispatch into
// regardless of which operation is running, the same way the teacher's
// internal/protocol/session.go centralizes cross-cutting session state
// rather than duplicating it per message handler.
package gpgctx

import (
	"fmt"
	"sync"

	"github.com/gpgclient/gpgclient/internal/gpgerr"
	"github.com/gpgclient/gpgclient/internal/keycache"
	"github.com/gpgclient/gpgclient/internal/keymodel"
	"github.com/gpgclient/gpgclient/internal/reactor"
)

// KeylistMode is a bitset controlling where a keylist operation looks.
type KeylistMode uint8

const (
	KeylistModeLocal KeylistMode = 1 << iota
	KeylistModeExtern
	KeylistModeSigs
	KeylistModeEphemeral
	KeylistModeValidate
)

// PassphraseCallback answers a passphrase request. uidHint is formatted
// per §4.9: "<keyid16> <mainkeyid16> <pubkey-algo> <keylen> <desc>";
// info is the <desc> part alone. lastWasBad is true when this is a
// reissue after BAD_PASSPHRASE.
type PassphraseCallback func(uidHint, info string, lastWasBad bool) (passphrase string, err error)

// ProgressCallback reports PROGRESS status notifications. typ is one of
// '.', '+', '!', '^', '<', '>', accepted without interpretation.
type ProgressCallback func(what string, typ byte, current, total int64)

// OpKind identifies an operation-data slot's kind; a Context holds at
// most one slot per kind.
type OpKind int

const (
	OpVerify OpKind = iota
	OpDecrypt
	OpSign
	OpEncrypt
	OpKeylist
	OpImport
	OpGenkey
	OpEdit
	OpTrustlist
	OpSignEncrypt
)

// Context is the runtime's per-operation handle.
type Context struct {
	mu sync.Mutex

	protocol Protocol

	Armor          bool
	Textmode       bool
	IncludeCerts   int
	KeylistMode    KeylistMode
	EnginePath     string

	signers []*keymodel.Key

	passphraseCB PassphraseCallback
	progressCB   ProgressCallback

	slots map[OpKind]interface{}

	pending   bool
	cancelled bool

	lastError error
	lastInfoXML string

	reactor reactor.Reactor

	cache *keycache.Cache

	// passphraseCached tracks whether a cached passphrase exists so a
	// GOOD_PASSPHRASE notification knows whether there is anything to
	// release.
	passphraseCached bool
}

// Protocol selects which engine family a Context talks to.
type Protocol int

const (
	ProtocolOpenPGP Protocol = iota
	ProtocolCMS
)

// New returns a Context with the default flags from §4.9: keylist-mode
// local, include-certs 1, armor/textmode off.
func New(cache *keycache.Cache) *Context {
	return &Context{
		KeylistMode:  KeylistModeLocal,
		IncludeCerts: 1,
		slots:        make(map[OpKind]interface{}),
		cache:        cache,
	}
}

// SetProtocol selects the engine family this context will use for its
// next operation. It fails if an operation is currently pending.
func (c *Context) SetProtocol(p Protocol) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending {
		return gpgerr.New(gpgerr.SourceCore, gpgerr.KindInvalidValue, "context has a pending operation")
	}
	c.protocol = p
	return nil
}

// Protocol returns the currently selected engine family.
func (c *Context) Protocol() Protocol {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocol
}

// SignersAdd retains a reference to k as one of the context's signers.
func (c *Context) SignersAdd(k *keymodel.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signers = append(c.signers, k.Ref())
}

// SignersClear releases every signer reference.
func (c *Context) SignersClear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.signers {
		k.Unref()
	}
	c.signers = nil
}

// Signers returns the current signer set.
func (c *Context) Signers() []*keymodel.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*keymodel.Key, len(c.signers))
	copy(out, c.signers)
	return out
}

// SetPassphraseCallback installs cb, replacing any previous one.
func (c *Context) SetPassphraseCallback(cb PassphraseCallback) {
	c.mu.Lock()
	c.passphraseCB = cb
	c.mu.Unlock()
}

// SetProgressCallback installs cb, replacing any previous one.
func (c *Context) SetProgressCallback(cb ProgressCallback) {
	c.mu.Lock()
	c.progressCB = cb
	c.mu.Unlock()
}

// BeginOperation marks the context pending, failing if one is already in
// flight.
func (c *Context) BeginOperation() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending {
		return gpgerr.New(gpgerr.SourceCore, gpgerr.KindInvalidValue, "operation already pending on this context")
	}
	if c.cancelled {
		return gpgerr.Sentinel(gpgerr.KindCanceled)
	}
	c.pending = true
	return nil
}

// EndOperation clears the pending flag and stores the operation's
// terminal error (which may be nil).
func (c *Context) EndOperation(err error) {
	c.mu.Lock()
	c.pending = false
	c.lastError = err
	c.mu.Unlock()
}

// Pending reports whether an operation is currently in flight.
func (c *Context) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Cancel flips the cancellation flag. It is safe to call at any point,
// including from a different goroutine than the one pumping the
// context's reactor.
func (c *Context) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
	if pr, ok := c.reactor.(*reactor.PrivateReactor); ok {
		pr.Cancel()
	}
}

// Cancelled reports whether Cancel has been called and not yet cleared by
// Release.
func (c *Context) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// SetReactor installs the reactor this context's next operation will
// register descriptors with.
func (c *Context) SetReactor(r reactor.Reactor) {
	c.mu.Lock()
	c.reactor = r
	c.mu.Unlock()
}

// Reactor returns the context's currently installed reactor, or nil.
func (c *Context) Reactor() reactor.Reactor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reactor
}

// SetSlot stores an operation-data value under kind, replacing any prior
// slot of the same kind (at most one per type, per §3).
func (c *Context) SetSlot(kind OpKind, v interface{}) {
	c.mu.Lock()
	c.slots[kind] = v
	c.mu.Unlock()
}

// Slot returns the operation-data value stored under kind, or nil.
func (c *Context) Slot(kind OpKind) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[kind]
}

// Release tears down the context: clears cancellation, empties operation-
// data slots, and releases signer references. It does not touch the
// engine handle or reactor, which the driver owns and closes separately.
func (c *Context) Release() {
	c.mu.Lock()
	c.cancelled = false
	c.slots = make(map[OpKind]interface{})
	signers := c.signers
	c.signers = nil
	c.mu.Unlock()
	for _, k := range signers {
		k.Unref()
	}
}

// LastError returns the most recently completed operation's error.
func (c *Context) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// LastInfoXML returns the XML info payload (if any) attached by the most
// recently completed operation (e.g. the encrypt machine's invalid-
// recipients fragment).
func (c *Context) LastInfoXML() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastInfoXML
}

// SetLastInfoXML stores an informational XML payload for the currently
// completing operation.
func (c *Context) SetLastInfoXML(xml string) {
	c.mu.Lock()
	c.lastInfoXML = xml
	c.mu.Unlock()
}

// KeyCache returns the process-wide cache this context looks keys up
// through, or nil if none was configured.
func (c *Context) KeyCache() *keycache.Cache {
	return c.cache
}

// --- Passphrase subprotocol ------------------------------------------

// PassphraseRequest describes one NEED_PASSPHRASE(_SYM) notification.
type PassphraseRequest struct {
	KeyID16     string
	MainKeyID16 string
	PubkeyAlgo  string
	KeyLength   string
	Description string
	LastWasBad  bool
}

// FormatDescriptor builds the "<keyid16> <mainkeyid16> <pubkey-algo>
// <keylen> <desc>" string handed to the passphrase callback.
func (r PassphraseRequest) FormatDescriptor() string {
	return fmt.Sprintf("%s %s %s %s %s", r.KeyID16, r.MainKeyID16, r.PubkeyAlgo, r.KeyLength, r.Description)
}

// RequestPassphrase invokes the installed passphrase callback, if any,
// returning the line to write to the engine's command-fd (newline
// appended if absent).
func (c *Context) RequestPassphrase(req PassphraseRequest) (string, error) {
	c.mu.Lock()
	cb := c.passphraseCB
	c.mu.Unlock()
	if cb == nil {
		return "", gpgerr.New(gpgerr.SourceCore, gpgerr.KindBadPassphrase, "no passphrase callback installed")
	}
	pass, err := cb(req.FormatDescriptor(), req.Description, req.LastWasBad)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.passphraseCached = true
	c.mu.Unlock()
	if len(pass) == 0 || pass[len(pass)-1] != '\n' {
		pass += "\n"
	}
	return pass, nil
}

// OnGoodPassphrase releases any cached passphrase value per the
// GOOD_PASSPHRASE notification.
func (c *Context) OnGoodPassphrase() {
	c.mu.Lock()
	c.passphraseCached = false
	c.mu.Unlock()
}

// OnMissingPassphrase reports the terminal error for a MISSING_PASSPHRASE
// notification.
func (c *Context) OnMissingPassphrase() error {
	return gpgerr.New(gpgerr.SourceEngine, gpgerr.KindBadPassphrase, "no passphrase available")
}

// --- Progress subprotocol ---------------------------------------------

// ReportProgress invokes the installed progress callback, if any.
func (c *Context) ReportProgress(what string, typ byte, current, total int64) {
	c.mu.Lock()
	cb := c.progressCB
	c.mu.Unlock()
	if cb != nil {
		cb(what, typ, current, total)
	}
}
