package object_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quarryvcs/quarry/hash"
	"github.com/quarryvcs/quarry/object"
	"github.com/quarryvcs/quarry/serialize"
)

func TestTreeFindSorted(t *testing.T) {
	id, err := hash.Sum(hash.KindBlob, []byte("x"))
	require.NoError(t, err)
	entries := []object.Entry{
		{Name: "main.cpp", Id: id, Type: object.EntryFile, Size: 24},
		{Name: "test.txt", Id: id, Type: object.EntryFile, Size: 10},
	}
	buf, err := serialize.BuildTree(entries)
	require.NoError(t, err)

	o, err := object.Load(hash.KindTree, buf)
	require.NoError(t, err)
	tr, err := o.AsTree()
	require.NoError(t, err)

	got, err := tr.Entries()
	require.NoError(t, err)
	require.Equal(t, "main.cpp", got[0].Name)
	require.Equal(t, "test.txt", got[1].Name)

	_, found, err := tr.Find("unknown")
	require.NoError(t, err)
	require.False(t, found)

	e, found, err := tr.Find("test.txt")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(10), e.Size)
}

func TestTreeEmpty(t *testing.T) {
	buf, err := serialize.BuildTree(nil)
	require.NoError(t, err)
	o, err := object.Load(hash.KindTree, buf)
	require.NoError(t, err)
	tr, err := o.AsTree()
	require.NoError(t, err)
	empty, err := tr.Empty()
	require.NoError(t, err)
	require.True(t, empty)
}

func TestAsTreeKindMismatch(t *testing.T) {
	o, err := object.Load(hash.KindBlob, []byte("x"))
	require.NoError(t, err)
	_, err = o.AsTree()
	require.Error(t, err)
}
