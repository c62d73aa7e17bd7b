// Package gpgclient is the runtime's public surface: a Context bound to
// one protocol (OpenPGP or CMS), driving the matching engine driver
// (internal/engine/pipe or internal/engine/assuan) through the
// operation state machines in internal/opstate and returning their
// immutable result records.
package gpgclient

import (
	"time"

	"github.com/gpgclient/gpgclient/internal/config"
	"github.com/gpgclient/gpgclient/internal/gpgctx"
	"github.com/gpgclient/gpgclient/internal/gpgerr"
	"github.com/gpgclient/gpgclient/internal/keycache"
	"github.com/gpgclient/gpgclient/internal/keymodel"
	"github.com/gpgclient/gpgclient/internal/metrics"
	"github.com/gpgclient/gpgclient/internal/obslog"
	"github.com/gpgclient/gpgclient/internal/reactor"
)

// Protocol re-exports gpgctx's protocol selector.
type Protocol = gpgctx.Protocol

const (
	ProtocolOpenPGP = gpgctx.ProtocolOpenPGP
	ProtocolCMS     = gpgctx.ProtocolCMS
)

// Context is one operation handle: it owns a gpgctx.Context plus the
// engine configuration needed to spawn the right process for whichever
// protocol is currently selected.
type Context struct {
	*gpgctx.Context
	cfg *config.Config
	m   *metrics.Metrics
}

// SetMetrics attaches a Metrics instance that run will report every
// operation's count and duration through. Passing nil (the default)
// disables instrumentation.
func (c *Context) SetMetrics(m *metrics.Metrics) {
	c.m = m
}

// NewContext returns a Context defaulting to the OpenPGP protocol, using
// cfg to resolve engine paths/home directories and cache as the
// process-wide key cache (pass a shared *keycache.Cache across Contexts
// that should see each other's cached lookups, or keycache.New() for an
// isolated one).
func NewContext(cfg *config.Config, cache *keycache.Cache) *Context {
	c := &Context{Context: gpgctx.New(cache), cfg: cfg}
	c.SetProtocol(gpgctx.ProtocolOpenPGP)
	c.Armor = cfg.Context.Armor
	c.Textmode = cfg.Context.Textmode
	c.IncludeCerts = cfg.Context.IncludeCerts
	return c
}

func (c *Context) engine() config.EngineConfig {
	if c.Protocol() == gpgctx.ProtocolCMS {
		return c.cfg.CMS
	}
	return c.cfg.OpenPGP
}

func (c *Context) waitTimeout() time.Duration {
	return time.Duration(c.cfg.WaitCore.TimeoutSec) * time.Second
}

// newPrivateReactor installs and returns a fresh PrivateReactor for one
// operation, per §4.9's "exactly one operation at a time" invariant
// already enforced by BeginOperation/EndOperation.
func (c *Context) newPrivateReactor() *reactor.PrivateReactor {
	r := reactor.NewPrivateReactor()
	c.SetReactor(r)
	return r
}

// run wraps the BeginOperation/defer-EndOperation bracket every
// operation method needs, so each operation body only has to supply the
// work itself. kind names the operation for logging and metrics (e.g.
// "decrypt", "keylist").
func (c *Context) run(kind string, work func() error) error {
	if err := c.BeginOperation(); err != nil {
		return err
	}
	protocol := c.protocolLabel()
	obslog.OperationStarted(kind, protocol)
	start := time.Now()
	err := work()
	obslog.OperationDone(kind, protocol, err)
	if c.m != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.m.OperationsTotal.WithLabelValues(kind, protocol, outcome).Inc()
		c.m.OperationDuration.WithLabelValues(kind, protocol).Observe(time.Since(start).Seconds())
	}
	c.EndOperation(err)
	return err
}

func (c *Context) protocolLabel() string {
	if c.Protocol() == gpgctx.ProtocolCMS {
		return "cms"
	}
	return "openpgp"
}

// signerFingerprints returns the currently configured signer set's
// fingerprints, for building argv/Assuan SIGNER commands.
func (c *Context) signerFingerprints() []string {
	signers := c.Signers()
	out := make([]string, 0, len(signers))
	for _, k := range signers {
		out = append(out, fingerprintOf(k))
	}
	return out
}

func fingerprintOf(k *keymodel.Key) string {
	fpr := k.Fingerprint()
	if fpr == "" {
		return ""
	}
	return fpr
}

func invalidProtocol() error {
	return gpgerr.New(gpgerr.SourceCore, gpgerr.KindInvalidValue, "operation not supported for the selected protocol")
}
