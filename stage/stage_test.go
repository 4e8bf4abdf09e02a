package stage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quarryvcs/quarry/hash"
	"github.com/quarryvcs/quarry/object"
	"github.com/quarryvcs/quarry/stage"
	"github.com/quarryvcs/quarry/store"
	"github.com/quarryvcs/quarry/store/cache"
)

func newTestDatastore(t *testing.T) *store.Datastore {
	t.Helper()
	c := cache.New(1<<20, nil)
	return store.NewDatastore(1<<20, c, store.WithCache(c))
}

func putBlob(t *testing.T, ctx context.Context, ds *store.Datastore, content string) object.PathEntry {
	t.Helper()
	id, _, err := ds.Put(ctx, hash.KindBlob, []byte(content))
	require.NoError(t, err)
	return object.PathEntry{Entry: object.Entry{Id: id, Type: object.EntryFile, Size: uint64(len(content))}}
}

func TestAddThenGetEntry(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)
	s := stage.New(ds, hash.Id{})

	entry := putBlob(t, ctx, ds, "hello")
	added, err := s.Add(ctx, "a/b/c.txt", entry)
	require.NoError(t, err)
	require.True(t, added)

	got, ok, err := s.GetEntry(ctx, "a/b/c.txt", false)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, entry.Id, got.Id)
	require.Equal(t, object.EntryFile, got.Type)
}

func TestGetEntryMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)
	s := stage.New(ds, hash.Id{})

	_, ok, err := s.GetEntry(ctx, "nope", false)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListTree(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)
	s := stage.New(ds, hash.Id{})

	_, err := s.Add(ctx, "dir/b.txt", putBlob(t, ctx, ds, "b"))
	require.NoError(t, err)
	_, err = s.Add(ctx, "dir/a.txt", putBlob(t, ctx, ds, "a"))
	require.NoError(t, err)

	listed, err := s.ListTree(ctx, "dir", false)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, "a.txt", listed[0].Name)
	require.Equal(t, "b.txt", listed[1].Name)
}

func TestRemoveZeroIDStubErasesEntirely(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)
	s := stage.New(ds, hash.Id{})

	// An entry with no id yet (e.g. an empty directory stub) has nothing
	// worth tombstoning, so removing it erases it outright.
	_, err := s.Add(ctx, "dir", object.PathEntry{Entry: object.Entry{Type: object.EntryDirectory}})
	require.NoError(t, err)

	removed, err := s.Remove(ctx, "dir")
	require.NoError(t, err)
	require.True(t, removed)

	_, ok, err := s.GetEntry(ctx, "dir", true)
	require.NoError(t, err)
	require.False(t, ok, "a zero-id stub should be erased, not tombstoned")
}

func TestRemoveWithRealIDTombstonesRatherThanErases(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)
	s := stage.New(ds, hash.Id{})

	// Even a freshly-added (never-committed) entry already carries a real
	// blob id, so it is tombstoned rather than erased, matching the source's
	// `if (ei->second.id)` check rather than an "ephemeral vs persisted"
	// distinction.
	_, err := s.Add(ctx, "f.txt", putBlob(t, ctx, ds, "x"))
	require.NoError(t, err)

	removed, err := s.Remove(ctx, "f.txt")
	require.NoError(t, err)
	require.True(t, removed)

	_, ok, err := s.GetEntry(ctx, "f.txt", false)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = s.GetEntry(ctx, "f.txt", true)
	require.NoError(t, err)
	require.True(t, ok, "an entry with a real id is tombstoned, still visible with removed=true")
}

func TestRemoveFromBaseTombstonesAndIsRestorable(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)

	base := stage.New(ds, hash.Id{})
	_, err := base.Add(ctx, "f.txt", putBlob(t, ctx, ds, "x"))
	require.NoError(t, err)
	baseTreeID, err := base.SaveTree(ctx, false)
	require.NoError(t, err)

	s := stage.New(ds, baseTreeID)
	removed, err := s.Remove(ctx, "f.txt")
	require.NoError(t, err)
	require.True(t, removed)

	_, ok, err := s.GetEntry(ctx, "f.txt", false)
	require.NoError(t, err)
	require.False(t, ok)

	got, ok, err := s.GetEntry(ctx, "f.txt", true)
	require.NoError(t, err)
	require.True(t, ok, "tombstoned entry from the base tree should still be visible with removed=true")

	// Restore by re-adding.
	_, err = s.Add(ctx, "f.txt", got)
	require.NoError(t, err)
	got, ok, err = s.GetEntry(ctx, "f.txt", false)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCopyReadsFromBaseNotOverlay(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)

	base := stage.New(ds, hash.Id{})
	original := putBlob(t, ctx, ds, "original")
	_, err := base.Add(ctx, "src.txt", original)
	require.NoError(t, err)
	baseTreeID, err := base.SaveTree(ctx, false)
	require.NoError(t, err)

	s := stage.New(ds, baseTreeID)
	// Mutate src.txt in the overlay; Copy must still read the base's value.
	mutated := putBlob(t, ctx, ds, "mutated")
	_, err = s.Add(ctx, "src.txt", mutated)
	require.NoError(t, err)

	copied, err := s.Copy(ctx, "src.txt", "dst.txt")
	require.NoError(t, err)
	require.True(t, copied)

	got, ok, err := s.GetEntry(ctx, "dst.txt", false)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, original.Id, got.Id)

	copies := s.Copies()
	require.Equal(t, "src.txt", copies["dst.txt"].SourcePath)
}

func TestSaveTreeNeverTouchedReturnsBaseId(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)

	base := stage.New(ds, hash.Id{})
	_, err := base.Add(ctx, "f.txt", putBlob(t, ctx, ds, "x"))
	require.NoError(t, err)
	baseTreeID, err := base.SaveTree(ctx, false)
	require.NoError(t, err)
	require.False(t, baseTreeID.IsZero())

	s := stage.New(ds, baseTreeID)
	savedID, err := s.SaveTree(ctx, false)
	require.NoError(t, err)
	require.Equal(t, baseTreeID, savedID)
}

func TestSaveTreeEmptyStageReturnsValidEmptyTree(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)
	s := stage.New(ds, hash.Id{})

	id, err := s.SaveTree(ctx, false)
	require.NoError(t, err)
	require.False(t, id.IsZero())

	tr, err := ds.LoadTree(ctx, id)
	require.NoError(t, err)
	empty, err := tr.Empty()
	require.NoError(t, err)
	require.True(t, empty)
}

func TestSaveTreeSkipsEmptySubdirectoriesUnlessKept(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)
	s := stage.New(ds, hash.Id{})

	_, err := s.Add(ctx, "empty/sub/.keep", putBlob(t, ctx, ds, "k"))
	require.NoError(t, err)
	removed, err := s.Remove(ctx, "empty/sub/.keep")
	require.NoError(t, err)
	require.True(t, removed)

	id, err := s.SaveTree(ctx, false)
	require.NoError(t, err)
	tr, err := ds.LoadTree(ctx, id)
	require.NoError(t, err)
	empty, err := tr.Empty()
	require.NoError(t, err)
	require.True(t, empty, "empty subdirectories should be dropped when keepEmptyDirs is false")
}

func TestSaveTreeChunkedOverManySubdirectories(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)
	s := stage.New(ds, hash.Id{})

	names := []string{"a", "b", "c", "d", "e"}
	for _, dir := range names {
		for _, file := range names {
			_, err := s.Add(ctx, dir+"/"+file+".txt", putBlob(t, ctx, ds, dir+file))
			require.NoError(t, err)
		}
	}

	id, err := s.SaveTree(ctx, false)
	require.NoError(t, err)

	tr, err := ds.LoadTree(ctx, id)
	require.NoError(t, err)
	entries, err := tr.Entries()
	require.NoError(t, err)
	require.Len(t, entries, len(names))
	for i, e := range entries {
		require.Equal(t, names[i], e.Name)
		require.Equal(t, object.EntryDirectory, e.Type)

		sub, err := ds.LoadTree(ctx, e.Id)
		require.NoError(t, err)
		subEntries, err := sub.Entries()
		require.NoError(t, err)
		require.Len(t, subEntries, len(names))
	}
}

func TestSaveTreeUpdateOnlyRewritesDirtyPath(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)

	base := stage.New(ds, hash.Id{})
	_, err := base.Add(ctx, "a/one.txt", putBlob(t, ctx, ds, "one"))
	require.NoError(t, err)
	_, err = base.Add(ctx, "b/two.txt", putBlob(t, ctx, ds, "two"))
	require.NoError(t, err)
	baseTreeID, err := base.SaveTree(ctx, false)
	require.NoError(t, err)
	baseTree, err := ds.LoadTree(ctx, baseTreeID)
	require.NoError(t, err)
	baseEntries, err := baseTree.Entries()
	require.NoError(t, err)
	var bSubID hash.Id
	for _, e := range baseEntries {
		if e.Name == "b" {
			bSubID = e.Id
		}
	}
	require.False(t, bSubID.IsZero())

	s := stage.New(ds, baseTreeID)
	_, err = s.Add(ctx, "a/one.txt", putBlob(t, ctx, ds, "one-edited"))
	require.NoError(t, err)

	newID, err := s.SaveTree(ctx, false)
	require.NoError(t, err)
	require.NotEqual(t, baseTreeID, newID)

	newTree, err := ds.LoadTree(ctx, newID)
	require.NoError(t, err)
	newEntries, err := newTree.Entries()
	require.NoError(t, err)
	for _, e := range newEntries {
		if e.Name == "b" {
			require.Equal(t, bSubID, e.Id, "untouched subtree must keep its original id")
		}
	}
}
