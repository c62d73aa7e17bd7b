package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlagSetSplitsValuesAndPositionals(t *testing.T) {
	values, positional := flagSet([]string{"--in", "a.txt", "alice", "--out", "b.txt"}, "--in", "--out")
	require.Equal(t, "a.txt", values["--in"])
	require.Equal(t, "b.txt", values["--out"])
	require.Equal(t, []string{"alice"}, positional)
}

func TestFlagSetIgnoresUnknownFlagAsPositional(t *testing.T) {
	values, positional := flagSet([]string{"--secret", "bob"}, "--in")
	require.Empty(t, values)
	require.Equal(t, []string{"--secret", "bob"}, positional)
}

func TestBoolFlagDetectsPresence(t *testing.T) {
	require.True(t, boolFlag([]string{"--detach"}, "--detach"))
	require.False(t, boolFlag([]string{}, "--detach"))
}

func TestRepeatedFlagCollectsAllOccurrences(t *testing.T) {
	got := repeatedFlag([]string{"--recipient", "a", "--recipient", "b"}, "--recipient")
	require.Equal(t, []string{"a", "b"}, got)
}
