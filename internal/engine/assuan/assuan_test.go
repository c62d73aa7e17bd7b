package assuan

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gpgclient/gpgclient/internal/gpgerr"
	"github.com/stretchr/testify/require"
)

func TestTranslateMapsKnownCodes(t *testing.T) {
	err := Translate(errBadPassphrase, "bad passphrase")
	require.Equal(t, gpgerr.KindBadPassphrase, gpgerr.Of(err))

	err = Translate(errInvalidRecipient, "no such recipient")
	require.Equal(t, gpgerr.KindInvalidRecipients, gpgerr.Of(err))
}

func TestTranslateFallsBackToGeneral(t *testing.T) {
	err := Translate(987654, "something odd")
	require.Equal(t, gpgerr.KindGeneral, gpgerr.Of(err))
}

func TestEscapeArgEscapesPercentSpacePlus(t *testing.T) {
	require.Equal(t, "a%20b%2Bc%25d", escapeArg("a b+c%d"))
}

// writeScript writes an executable shell script that speaks a minimal
// Assuan server dialogue and returns its path.
func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "engine.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/bash\n"+body), 0o755))
	return path
}

func TestSpawnReadsGreetingAndRunsSimpleCommand(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, `
echo "OK Pleased to meet you"
while read -r line; do
  case "$line" in
    "OPTION "*) echo "OK" ;;
    GENKEY) echo "INQUIRE KEYPARAM"; read -r d; read -r e; echo "OK"; ;;
    *) echo "OK" ;;
  esac
done
`)

	conn, pid, err := Spawn(script, nil, "", 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Option("display", ":0"))

	resp, err := conn.Genkey([]byte("Key-Type: RSA"))
	require.NoError(t, err)
	require.True(t, resp.OK)

	require.Greater(t, pid, 0)
}

func TestImportFeedsKeyDataViaInquire(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "received.pem")
	script := writeScript(t, dir, `
out="`+out+`"
echo "OK Pleased to meet you"
while read -r line; do
  case "$line" in
    IMPORT) echo "INQUIRE KEYDATA"; read -r d; printf '%s' "$d" | sed 's/^D //' > "$out"; read -r e; echo "S IMPORTED deadbeef"; echo "OK" ;;
    *) echo "OK" ;;
  esac
done
`)

	conn, _, err := Spawn(script, nil, "", 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	resp, err := conn.Import([]byte("-----BEGIN CERTIFICATE-----"))
	require.NoError(t, err)
	require.True(t, resp.OK)

	got, rerr := os.ReadFile(out)
	require.NoError(t, rerr)
	require.Equal(t, "-----BEGIN CERTIFICATE-----", string(got))
}

func TestEncryptPropagatesRecipientError(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, `
echo "OK Pleased to meet you"
while read -r line; do
  case "$line" in
    RECIPIENT*) echo "ERR 150 No such recipient" ;;
    *) echo "OK" ;;
  esac
done
`)

	conn, _, err := Spawn(script, nil, "", 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Encrypt([]string{"nobody@example.com"})
	require.Error(t, err)
	require.Equal(t, gpgerr.KindInvalidRecipients, gpgerr.Of(err))
}
