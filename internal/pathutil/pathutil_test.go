package pathutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	require.Nil(t, Split(""))
	require.Equal(t, []string{"a", "b"}, Split("a/b"))
	require.Equal(t, []string{"a", "b"}, Split("a//b/"))
	require.Equal(t, []string{"a"}, Split("/a"))
}

func TestJoin(t *testing.T) {
	require.Equal(t, "a", Join("", "a"))
	require.Equal(t, "a/b", Join("a", "b"))
}
