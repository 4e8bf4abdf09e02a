package delta

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripSmallEdit(t *testing.T) {
	base := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 20)
	target := append([]byte(nil), base...)
	target[100] = 'X'
	target = append(target, []byte("a new trailing sentence follows.")...)

	d := Encode(base, target)
	require.Less(t, len(d), len(target))

	got, err := Apply(base, d)
	require.NoError(t, err)
	require.Equal(t, target, got)
}

func TestRoundTripNoCommonality(t *testing.T) {
	base := []byte("aaaaaaaaaaaaaaaaaaaa")
	target := []byte("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")

	d := Encode(base, target)
	got, err := Apply(base, d)
	require.NoError(t, err)
	require.Equal(t, target, got)
}

func TestRoundTripEmptyTarget(t *testing.T) {
	base := []byte("anything")
	d := Encode(base, nil)
	got, err := Apply(base, d)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestApplyRejectsOutOfRangeCopy(t *testing.T) {
	base := []byte("short")
	bad := []byte{opCopy, 0, 100} // offset 0, length 100 > len(base)
	_, err := Apply(base, bad)
	require.ErrorIs(t, err, ErrCorrupt)
}
