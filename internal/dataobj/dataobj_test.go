package dataobj

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	orig := []byte("Hallo Leute!\n")
	d := NewMemory(orig, false)

	buf := make([]byte, len(orig))
	n, err := d.Read(buf)
	require.NoError(t, err)
	require.Equal(t, len(orig), n)
	require.Equal(t, orig, buf)

	// EOF reports 0, nil, not io.EOF.
	n, err = d.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	_, err = d.Seek(0, 0)
	require.NoError(t, err)
	n, err = d.Read(buf)
	require.NoError(t, err)
	require.Equal(t, orig, buf[:n])
}

func TestEmptyAutoPromotesOnWrite(t *testing.T) {
	d := NewEmpty()
	n, err := d.Write([]byte("first write"))
	require.NoError(t, err)
	require.Equal(t, len("first write"), n)
	require.Equal(t, []byte("first write"), d.Bytes())
}

func TestMemoryGrowsOnAppend(t *testing.T) {
	d := NewMemory(nil, true)
	for i := 0; i < 1000; i++ {
		_, err := d.Write([]byte("x"))
		require.NoError(t, err)
	}
	require.Len(t, d.Bytes(), 1000)
}

func TestXMLEscapeRoundTrip(t *testing.T) {
	cases := []string{
		"plain text",
		"<tag> & \"quotes\"",
		"a\x00b",
		"\n\r\t",
	}
	for _, c := range cases {
		got := UnescapeXML(EscapeXML(c))
		require.Equal(t, c, got)
	}
}

func TestXMLEscapeNulEntity(t *testing.T) {
	require.Equal(t, "a&#00;b", EscapeXML("a\x00b"))
}

func TestPullVariant(t *testing.T) {
	chunks := [][]byte{[]byte("abc"), []byte("def"), {}}
	idx := 0
	d := NewPull(PullCallbacks{
		ReadFunc: func(p []byte) (int, error) {
			if idx >= len(chunks) {
				return 0, nil
			}
			c := chunks[idx]
			idx++
			n := copy(p, c)
			return n, nil
		},
	})

	var got []byte
	buf := make([]byte, 16)
	for {
		n, err := d.Read(buf)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		got = append(got, buf[:n]...)
	}
	require.Equal(t, []byte("abcdef"), got)
}
