package statusproto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePipeStatusKnownToken(t *testing.T) {
	l, ok := ParsePipeStatus("[GNUPG:] GOODSIG 3CF405464F66ED4A7DF45BBDD1E4282E33BDB76E Alice")
	require.True(t, ok)
	require.Equal(t, CodeGOODSIG, l.Code)
	require.Equal(t, []string{"3CF405464F66ED4A7DF45BBDD1E4282E33BDB76E", "Alice"}, l.Args)
}

func TestParsePipeStatusUnknownToken(t *testing.T) {
	l, ok := ParsePipeStatus("[GNUPG:] SOME_FUTURE_TOKEN abc")
	require.True(t, ok)
	require.Equal(t, CodeUnknown, l.Code)
	require.Equal(t, "SOME_FUTURE_TOKEN", l.Token)
}

func TestParsePipeStatusWrongPrefix(t *testing.T) {
	_, ok := ParsePipeStatus("not a status line")
	require.False(t, ok)
}

func TestParseAssuanLines(t *testing.T) {
	cases := []struct {
		in   string
		kind AssuanLineKind
	}{
		{"S PROGRESS primegen .  10  100", AssuanStatus},
		{"OK Pleased to meet you", AssuanOK},
		{"ERR 67108921 No such key", AssuanERR},
		{"D some%20data", AssuanData},
		{"INQUIRE PASSPHRASE", AssuanInquire},
	}
	for _, c := range cases {
		got := ParseAssuanLine(c.in)
		require.Equal(t, c.kind, got.Kind, c.in)
	}
}

func TestAssuanErrCodeParsed(t *testing.T) {
	got := ParseAssuanLine("ERR 67108921 No such key")
	require.Equal(t, 67108921, got.Code)
	require.Equal(t, "No such key", got.Text)
}

func TestAssuanDataPercentDecoded(t *testing.T) {
	got := ParseAssuanLine("D some%20data%0A")
	require.Equal(t, []byte("some data\n"), got.Payload)
}

func TestPercentRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte("plain"),
		[]byte("has % percent"),
		[]byte("has\r\nnewlines"),
		[]byte{0x00, 0x01, 0x1f, 'x'},
		[]byte(""),
	}
	for _, c := range cases {
		enc := PercentEncode(c)
		dec := PercentDecode(enc)
		require.Equal(t, c, dec)
	}
}
