package pipe

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gpgclient/gpgclient/internal/dataobj"
	"github.com/gpgclient/gpgclient/internal/ioxfer"
	"github.com/gpgclient/gpgclient/internal/reactor"
	"github.com/gpgclient/gpgclient/internal/statusproto"
	"github.com/stretchr/testify/require"
)

func TestDecryptArgvBuildsExpectedTokens(t *testing.T) {
	b := DecryptArgv("/usr/bin/gpg", dataobj.NewMemory([]byte("ct"), true), dataobj.NewEmpty())
	require.Equal(t, "/usr/bin/gpg", b.path)

	var literals []string
	for _, tok := range b.tokens {
		if tok.slotIdx < 0 {
			literals = append(literals, tok.literal)
		}
	}
	require.Contains(t, literals, "--decrypt")
	require.Contains(t, literals, "--status-fd")
	require.Contains(t, literals, "--batch")
}

func TestKeylistArgvRequestsColonChannel(t *testing.T) {
	b := KeylistArgv("/usr/bin/gpg", false, false, []string{"alice"})
	var haveColon bool
	for _, s := range b.slots {
		if s.kind == slotColon {
			haveColon = true
		}
	}
	require.True(t, haveColon)
}

func TestResolveSubstitutesSlotNumbers(t *testing.T) {
	tokens := []argToken{
		{literal: "--status-fd", slotIdx: -1},
		{slotIdx: 0},
		{literal: "-&", slotIdx: 1},
	}
	out := resolve(tokens, []int{9, 11})
	require.Equal(t, []string{"--status-fd", "9", "-&11"}, out)
}

// writeScript writes an executable shell script into dir and returns its
// path.
func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "engine.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/bash\n"+body), 0o755))
	return path
}

func TestSpawnStatusRoundTrip(t *testing.T) {
	dir := t.TempDir()
	// The script writes one GOODSIG status line to its status-fd (the
	// last positional argument, substituted by the argv builder) then
	// exits, closing the descriptor.
	script := writeScript(t, dir, `fd="${!#}"; echo "[GNUPG:] GOODSIG 0123456789ABCDEF Alice <alice@example.com>" >&"$fd"`)

	b := NewArgvBuilder(script)
	mandatory(b)
	// mandatory() already appended "--status-fd <N>"; the script reads
	// its last argument for the fd number, so re-expose it positionally too.
	idx := len(b.slots) - 1
	b.tokens = append(b.tokens, argToken{slotIdx: idx})

	r := reactor.NewPrivateReactor()
	d, err := Spawn(r, b)
	require.NoError(t, err)

	var got []statusproto.Line
	d.StatusSink = func(l statusproto.Line) error {
		got = append(got, l)
		return nil
	}
	require.NoError(t, d.Start())

	timeout := 2 * time.Second
	require.NoError(t, r.WaitOne(&timeout))

	require.Len(t, got, 1)
	require.Equal(t, statusproto.CodeGOODSIG, got[0].Code)

	_, werr := d.Wait()
	require.NoError(t, werr)
}

func TestSpawnDecryptPlaintextFlowsToOutput(t *testing.T) {
	dir := t.TempDir()
	// cat stdin to stdout, then emit a NODATA status line to the status-fd
	// (the last argument).
	script := writeScript(t, dir, `
statusfd="${!#}"
cat
echo "[GNUPG:] NODATA 1" >&"$statusfd"
`)

	ciphertext := dataobj.NewMemory([]byte("hello"), true)
	plaintext := dataobj.NewEmpty()

	b := NewArgvBuilder(script)
	mandatory(b)
	idx := len(b.slots) - 1
	b.Stdin(ciphertext)
	b.Stdout(plaintext)
	b.tokens = append(b.tokens, argToken{slotIdx: idx})

	r := reactor.NewPrivateReactor()
	d, err := Spawn(r, b)
	require.NoError(t, err)
	require.NoError(t, d.Start())

	timeout := 2 * time.Second
	require.NoError(t, r.WaitOne(&timeout))
	require.Equal(t, []byte("hello"), plaintext.Bytes())

	_, werr := d.Wait()
	require.NoError(t, werr)
}

func TestSplitColonFieldsDecodesHexEscapes(t *testing.T) {
	fields := splitColonFields(`pub:u:2048:1:FPR:::::Alice\x20Smith:`)
	require.Equal(t, "Alice Smith", fields[9])
}

func TestDriverCloseIsIdempotent(t *testing.T) {
	r := reactor.NewPrivateReactor()
	readFD, writeFD, err := ioxfer.Pipe()
	require.NoError(t, err)
	d := &Driver{r: r, data: map[string]*dataChannel{}}
	d.status = &dataChannel{fd: readFD}
	d.Close()
	d.Close()
	ioxfer.Close(writeFD)
}
