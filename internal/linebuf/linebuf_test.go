package linebuf

import (
	"testing"

	"github.com/gpgclient/gpgclient/internal/gpgerr"
	"github.com/stretchr/testify/require"
)

func TestFeedSingleChunk(t *testing.T) {
	b := New()
	lines, err := b.Feed([]byte("one\ntwo\nthree\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two", "three"}, toStrings(lines))
}

func TestFeedArbitraryChunking(t *testing.T) {
	full := "alpha\nbeta\ngamma\ndelta\n"
	// Try every possible split point and confirm identical output.
	for cut := 0; cut <= len(full); cut++ {
		b := New()
		first, err := b.Feed([]byte(full[:cut]))
		require.NoError(t, err)
		second, err := b.Feed([]byte(full[cut:]))
		require.NoError(t, err)
		got := append(first, second...)
		require.Equal(t, []string{"alpha", "beta", "gamma", "delta"}, toStrings(got), "cut=%d", cut)
	}
}

func TestFeedByteAtATime(t *testing.T) {
	full := []byte("x\nyy\nzzz\n")
	b := New()
	var got [][]byte
	for _, c := range full {
		lines, err := b.Feed([]byte{c})
		require.NoError(t, err)
		got = append(got, lines...)
	}
	require.Equal(t, []string{"x", "yy", "zzz"}, toStrings(got))
}

func TestLineTooLong(t *testing.T) {
	b := New()
	payload := make([]byte, LineLength+10)
	for i := range payload {
		payload[i] = 'a'
	}
	payload = append(payload, '\n')
	_, err := b.Feed(payload)
	require.Error(t, err)
	require.Equal(t, gpgerr.KindLineTooLong, gpgerr.Of(err))
}

func TestUnterminatedAtEOF(t *testing.T) {
	b := New()
	lines, err := b.Feed([]byte("complete\nincomplete"))
	require.NoError(t, err)
	require.Equal(t, []string{"complete"}, toStrings(lines))
	err = b.Finish()
	require.Error(t, err)
	require.Equal(t, gpgerr.KindLineNotTerminated, gpgerr.Of(err))
}

func TestEmbeddedNul(t *testing.T) {
	b := New()
	lines, err := b.Feed([]byte("a\x00b\n"))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, []byte("a\x00b"), lines[0])
}

func TestSplitAndReassemble(t *testing.T) {
	sw := SplitWriter{}
	payload := make([]byte, LineLength*3)
	for i := range payload {
		payload[i] = byte('A' + i%26)
	}
	lines := sw.Split(payload)
	require.Greater(t, len(lines), 1)

	// Strip terminators the way a receiver would after line-framing.
	var stripped [][]byte
	for _, l := range lines {
		if len(l) > 0 && l[len(l)-1] == '\n' {
			l = l[:len(l)-1]
		}
		stripped = append(stripped, l)
	}
	got := Reassemble(stripped)
	require.Equal(t, payload, got)
}

func toStrings(lines [][]byte) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = string(l)
	}
	return out
}
