package opstate

import (
	"testing"

	"github.com/gpgclient/gpgclient/internal/gpgerr"
	"github.com/gpgclient/gpgclient/internal/statusproto"
	"github.com/stretchr/testify/require"
)

func TestDecryptSuccess(t *testing.T) {
	d := NewDecrypt()
	require.NoError(t, d.Feed(statusLine(statusproto.CodeENC_TO, "KEYID1", "1", "0")))
	require.NoError(t, d.Feed(statusLine(statusproto.CodePLAINTEXT, "b", "out.txt")))

	res, err := d.Finish()
	require.NoError(t, err)
	require.Equal(t, "out.txt", res.FileName)
	require.Len(t, res.Recipients, 1)
}

func TestDecryptFailedTakesPriority(t *testing.T) {
	d := NewDecrypt()
	require.NoError(t, d.Feed(statusLine(statusproto.CodeNODATA)))
	d.MarkFailed()
	_, err := d.Finish()
	require.Equal(t, gpgerr.KindDecryptionFailed, gpgerr.Of(err))
}

func TestDecryptNoDataWhenNeverOkay(t *testing.T) {
	d := NewDecrypt()
	_, err := d.Finish()
	require.Equal(t, gpgerr.KindNoData, gpgerr.Of(err))
}

func TestSignCollectsCreatedSignature(t *testing.T) {
	s := NewSign()
	require.NoError(t, s.Feed(statusLine(statusproto.CodeSIG_CREATED, "D", "1", "2", "0", "1700000000", "FPR")))
	res, err := s.Finish()
	require.NoError(t, err)
	require.Len(t, res.Signatures, 1)
	require.Equal(t, SigModeDetached, res.Signatures[0].Mode)
}

func TestSignFailsOnInvalidSigner(t *testing.T) {
	s := NewSign()
	require.NoError(t, s.Feed(statusLine(statusproto.CodeINV_SGNR, "1", "FPR")))
	_, err := s.Finish()
	require.Equal(t, gpgerr.KindUnusableSecretKey, gpgerr.Of(err))
}

func TestEncryptNoRecipients(t *testing.T) {
	e := NewEncrypt()
	require.NoError(t, e.Feed(statusLine(statusproto.CodeNO_RECP, "0")))
	_, _, err := e.Finish()
	require.Equal(t, gpgerr.KindNoRecipients, gpgerr.Of(err))
}

func TestEncryptInvalidRecipientsProducesXML(t *testing.T) {
	e := NewEncrypt()
	require.NoError(t, e.Feed(statusLine(statusproto.CodeINV_RECP, "10", "BADFPR")))
	_, xml, err := e.Finish()
	require.Equal(t, gpgerr.KindInvalidRecipients, gpgerr.Of(err))
	require.Contains(t, xml, "BADFPR")
}

func TestEncryptSuccess(t *testing.T) {
	e := NewEncrypt()
	_, xml, err := e.Finish()
	require.NoError(t, err)
	require.Empty(t, xml)
}

func TestSignEncryptCollectsBothHalves(t *testing.T) {
	se := NewSignEncrypt()
	require.NoError(t, se.Feed(statusLine(statusproto.CodeSIG_CREATED, "D", "1", "2", "0", "1700000000", "FPR")))
	res, xml, err := se.Finish()
	require.NoError(t, err)
	require.Empty(t, xml)
	require.Len(t, res.Signatures, 1)
	require.Empty(t, res.InvalidRecipients)
}

func TestSignEncryptNoRecipientsFails(t *testing.T) {
	se := NewSignEncrypt()
	require.NoError(t, se.Feed(statusLine(statusproto.CodeSIG_CREATED, "D", "1", "2", "0", "1700000000", "FPR")))
	require.NoError(t, se.Feed(statusLine(statusproto.CodeNO_RECP, "0")))
	res, _, err := se.Finish()
	require.Equal(t, gpgerr.KindNoRecipients, gpgerr.Of(err))
	require.Len(t, res.Signatures, 1)
}

func TestSignEncryptInvalidSignerFailsWhenRecipientsOK(t *testing.T) {
	se := NewSignEncrypt()
	require.NoError(t, se.Feed(statusLine(statusproto.CodeINV_SGNR, "1", "FPR")))
	_, _, err := se.Finish()
	require.Equal(t, gpgerr.KindUnusableSecretKey, gpgerr.Of(err))
}

func TestKeylistParsesPrimaryAndUID(t *testing.T) {
	k := NewKeylist()
	k.Feed([]string{"pub", "", "2048", "1", "LONGKEYID", "1000", "2000", "", "", "", "", "esca"})
	k.Feed([]string{"fpr", "", "", "", "", "", "", "", "", "3CF405464F66ED4A7DF45BBDD1E4282E33BDB76E"})
	k.Feed([]string{"uid", "f", "", "", "", "", "", "", "", "Alice <alice@example.com>"})
	res := k.Finish()
	require.False(t, res.Truncated)
	require.Len(t, k.Keys, 1)
	key := k.Keys[0]
	require.Equal(t, "3CF405464F66ED4A7DF45BBDD1E4282E33BDB76E", key.Fingerprint())
	require.Len(t, key.UserIDs, 1)
	require.Equal(t, "Alice", key.UserIDs[0].Name)
	require.Equal(t, "alice@example.com", key.UserIDs[0].Email)
	require.True(t, key.CanEncrypt())
	require.True(t, key.CanSign())
}

func TestKeylistFlushesOnNewPrimary(t *testing.T) {
	k := NewKeylist()
	k.Feed([]string{"pub", "", "", "", "KEY1"})
	k.Feed([]string{"pub", "", "", "", "KEY2"})
	k.Finish()
	require.Len(t, k.Keys, 2)
}

func TestImportCounters(t *testing.T) {
	im := NewImport()
	require.NoError(t, im.Feed(statusLine(statusproto.CodeIMPORTED, "FPR1")))
	require.NoError(t, im.Feed(statusLine(statusproto.CodeIMPORT_RES,
		"1", "0", "1", "0", "0", "0", "0", "0", "0", "0", "0", "0", "0")))
	res := im.Finish()
	require.Equal(t, 1, res.Considered)
	require.Equal(t, 1, res.Imported)
}

func TestMergeImportResultsRemovesDoubleCounting(t *testing.T) {
	a := ImportResult{
		Considered: 2, Unchanged: 1,
		Entries: []ImportStatusEntry{{Fingerprint: "A"}, {Fingerprint: "B"}},
	}
	b := ImportResult{
		Considered: 2, Unchanged: 1,
		Entries: []ImportStatusEntry{{Fingerprint: "B"}, {Fingerprint: "C"}},
	}
	merged := MergeImportResults(a, b)
	// B, reported by both a and b, must be counted as considered only once.
	require.Equal(t, 3, merged.Considered)
	require.Len(t, merged.Entries, 3)
}

func TestImportOKMarksSecretEntry(t *testing.T) {
	im := NewImport()
	require.NoError(t, im.Feed(statusLine(statusproto.CodeIMPORTED, "FPR1")))
	require.NoError(t, im.Feed(statusLine(statusproto.CodeIMPORT_OK, "17", "FPR1")))
	res := im.Finish()
	require.Len(t, res.Entries, 1)
	require.True(t, res.Entries[0].Secret())
}

func TestImportOKWithoutPriorImportedCreatesEntry(t *testing.T) {
	im := NewImport()
	require.NoError(t, im.Feed(statusLine(statusproto.CodeIMPORT_OK, "16", "FPRSECRETONLY")))
	res := im.Finish()
	require.Len(t, res.Entries, 1)
	require.Equal(t, "FPRSECRETONLY", res.Entries[0].Fingerprint)
	require.True(t, res.Entries[0].Secret())
}

func TestMergeImportResultsRemovesSecretDoubleCounting(t *testing.T) {
	a := ImportResult{
		SecretRead: 2, SecretUnchanged: 1,
		Entries: []ImportStatusEntry{
			{Fingerprint: "A"},
			{Fingerprint: "B", StatusBits: 1 << 4},
		},
	}
	b := ImportResult{
		SecretRead: 2, SecretUnchanged: 1,
		Entries: []ImportStatusEntry{
			{Fingerprint: "B", StatusBits: 1 << 4},
			{Fingerprint: "C"},
		},
	}
	merged := MergeImportResults(a, b)
	// B is a secret-key entry reported by both runs; it must only be
	// subtracted once from the secret counters.
	require.Equal(t, 3, merged.SecretRead)
	require.Equal(t, 1, merged.SecretUnchanged)
}

func TestMergeImportResultsIdentityWithEmpty(t *testing.T) {
	a := ImportResult{Considered: 5, Imported: 3, Entries: []ImportStatusEntry{{Fingerprint: "X"}}}
	merged := MergeImportResults(a, ImportResult{})
	require.Equal(t, a.Considered, merged.Considered)
	require.Equal(t, a.Imported, merged.Imported)
	require.Equal(t, a.Entries, merged.Entries)
}

func TestGenkeyParsesPrimaryAndSub(t *testing.T) {
	g := NewGenkey()
	require.NoError(t, g.Feed(statusLine(statusproto.CodeKEY_CREATED, "B", "FPRXYZ")))
	res, err := g.Finish()
	require.NoError(t, err)
	require.True(t, res.Primary)
	require.True(t, res.Sub)
	require.Equal(t, "FPRXYZ", res.Fingerprint)
}

func TestGenkeyNoKeyCreatedFails(t *testing.T) {
	g := NewGenkey()
	_, err := g.Finish()
	require.Equal(t, gpgerr.KindGeneral, gpgerr.Of(err))
}

func TestEditRoutesPromptToCallback(t *testing.T) {
	e := NewEdit(func(p EditPrompt) (string, bool) {
		require.Equal(t, statusproto.CodeGET_LINE, p.Code)
		require.Equal(t, "keyedit.prompt", p.Keyword)
		return "save", true
	})
	reply, ok := e.Feed(statusLine(statusproto.CodeGET_LINE, "keyedit.prompt"))
	require.True(t, ok)
	require.Equal(t, "save\n", reply)
}

func TestEditNoAnswerSendsBareNewline(t *testing.T) {
	e := NewEdit(func(p EditPrompt) (string, bool) { return "", false })
	reply, ok := e.Feed(statusLine(statusproto.CodeGET_BOOL, "keyedit.save.okay"))
	require.True(t, ok)
	require.Equal(t, "\n", reply)
}

func TestEditIgnoresNonPromptLines(t *testing.T) {
	e := NewEdit(nil)
	_, ok := e.Feed(statusLine(statusproto.CodePROGRESS, "x"))
	require.False(t, ok)
}

func TestTrustlistParsesFields(t *testing.T) {
	tl := NewTrustlist()
	item := tl.Feed([]string{"1", "0123456789ABCDEF", "K", "", "f", "u", "", "", "Alice"})
	require.Equal(t, 1, item.Level)
	require.Equal(t, "0123456789ABCDEF", item.KeyID)
	require.Equal(t, byte('f'), item.OwnerTrust)
	require.Equal(t, byte('u'), item.Validity)
	require.Equal(t, "Alice", item.DisplayName)
	require.Len(t, tl.Items, 1)
}
