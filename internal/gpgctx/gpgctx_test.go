package gpgctx

import (
	"testing"

	"github.com/gpgclient/gpgclient/internal/gpgerr"
	"github.com/gpgclient/gpgclient/internal/keycache"
	"github.com/gpgclient/gpgclient/internal/keymodel"
	"github.com/stretchr/testify/require"
)

func TestNewContextHasDefaults(t *testing.T) {
	c := New(keycache.New())
	require.Equal(t, KeylistModeLocal, c.KeylistMode)
	require.Equal(t, 1, c.IncludeCerts)
	require.False(t, c.Armor)
	require.False(t, c.Textmode)
}

func TestSinglePendingOperation(t *testing.T) {
	c := New(keycache.New())
	require.NoError(t, c.BeginOperation())
	require.True(t, c.Pending())

	err := c.BeginOperation()
	require.Error(t, err)
	require.Equal(t, gpgerr.KindInvalidValue, gpgerr.Of(err))

	c.EndOperation(nil)
	require.False(t, c.Pending())
	require.NoError(t, c.BeginOperation())
}

func TestCancelPreventsNewOperation(t *testing.T) {
	c := New(keycache.New())
	c.Cancel()
	require.True(t, c.Cancelled())

	err := c.BeginOperation()
	require.Error(t, err)
	require.Equal(t, gpgerr.KindCanceled, gpgerr.Of(err))
}

func TestReleaseClearsCancelAndSigners(t *testing.T) {
	c := New(keycache.New())
	k := &keymodel.Key{Subkeys: []keymodel.Subkey{{Fingerprint: "FPR"}}}
	c.SignersAdd(k)
	require.EqualValues(t, 1, k.RefCount())

	c.Cancel()
	c.Release()

	require.False(t, c.Cancelled())
	require.EqualValues(t, 0, k.RefCount())
	require.Empty(t, c.Signers())
}

func TestSignersAddAndClear(t *testing.T) {
	c := New(keycache.New())
	k1 := &keymodel.Key{Subkeys: []keymodel.Subkey{{Fingerprint: "A"}}}
	k2 := &keymodel.Key{Subkeys: []keymodel.Subkey{{Fingerprint: "B"}}}
	c.SignersAdd(k1)
	c.SignersAdd(k2)
	require.Len(t, c.Signers(), 2)

	c.SignersClear()
	require.Empty(t, c.Signers())
	require.EqualValues(t, 0, k1.RefCount())
	require.EqualValues(t, 0, k2.RefCount())
}

func TestRequestPassphraseNoCallbackFails(t *testing.T) {
	c := New(keycache.New())
	_, err := c.RequestPassphrase(PassphraseRequest{KeyID16: "ABCD"})
	require.Equal(t, gpgerr.KindBadPassphrase, gpgerr.Of(err))
}

func TestRequestPassphraseAppendsNewline(t *testing.T) {
	c := New(keycache.New())
	c.SetPassphraseCallback(func(uidHint, info string, lastWasBad bool) (string, error) {
		require.False(t, lastWasBad)
		return "sekrit", nil
	})
	line, err := c.RequestPassphrase(PassphraseRequest{KeyID16: "ABCD", Description: "unlock"})
	require.NoError(t, err)
	require.Equal(t, "sekrit\n", line)
}

func TestOnMissingPassphraseFails(t *testing.T) {
	c := New(keycache.New())
	err := c.OnMissingPassphrase()
	require.Equal(t, gpgerr.KindBadPassphrase, gpgerr.Of(err))
}

func TestReportProgressInvokesCallback(t *testing.T) {
	c := New(keycache.New())
	var gotWhat string
	var gotCurrent, gotTotal int64
	c.SetProgressCallback(func(what string, typ byte, current, total int64) {
		gotWhat = what
		gotCurrent = current
		gotTotal = total
	})
	c.ReportProgress("primegen", '.', 10, 100)
	require.Equal(t, "primegen", gotWhat)
	require.EqualValues(t, 10, gotCurrent)
	require.EqualValues(t, 100, gotTotal)
}

func TestSetProtocolRejectedWhilePending(t *testing.T) {
	c := New(keycache.New())
	require.NoError(t, c.BeginOperation())
	err := c.SetProtocol(ProtocolCMS)
	require.Error(t, err)
}
