package changelist_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quarryvcs/quarry/changelist"
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

func buildTree(t *testing.T, ctx context.Context, ds *store.Datastore, files map[string]string) hash.Id {
	t.Helper()
	s := stage.New(ds, hash.Id{})
	for path, content := range files {
		_, err := s.Add(ctx, path, putBlob(t, ctx, ds, content))
		require.NoError(t, err)
	}
	id, err := s.SaveTree(ctx, false)
	require.NoError(t, err)
	return id
}

func TestChangesDetectsAddedFile(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)

	from := buildTree(t, ctx, ds, map[string]string{"a.txt": "a"})
	to := buildTree(t, ctx, ds, map[string]string{"a.txt": "a", "b.txt": "b"})

	var changes []changelist.Change
	require.NoError(t, changelist.Collect(ds, &changes).Changes(ctx, from, to))

	var found bool
	for _, c := range changes {
		if c.Path == "b.txt" {
			found = true
			require.Equal(t, changelist.ActionAdd, c.Action)
			require.Equal(t, object.EntryFile, c.Type)
		}
	}
	require.True(t, found)
}

func TestChangesDetectsDeletedFile(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)

	from := buildTree(t, ctx, ds, map[string]string{"a.txt": "a", "b.txt": "b"})
	to := buildTree(t, ctx, ds, map[string]string{"a.txt": "a"})

	var changes []changelist.Change
	require.NoError(t, changelist.Collect(ds, &changes).Changes(ctx, from, to))

	// The root trees differ, so Changes also emits the leading root-level
	// directory change (see path_filter.go's unconditional Match("")).
	require.Len(t, changes, 2)
	require.Equal(t, "", changes[0].Path)
	require.Equal(t, changelist.ActionDelete, changes[1].Action)
	require.Equal(t, "b.txt", changes[1].Path)
}

func TestChangesDetectsContentChange(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)

	from := buildTree(t, ctx, ds, map[string]string{"a.txt": "one"})
	to := buildTree(t, ctx, ds, map[string]string{"a.txt": "two"})

	var changes []changelist.Change
	require.NoError(t, changelist.Collect(ds, &changes).Changes(ctx, from, to))

	// The root trees differ, so Changes also emits the leading root-level
	// directory change.
	require.Len(t, changes, 2)
	require.Equal(t, "", changes[0].Path)
	require.Equal(t, changelist.ActionChange, changes[1].Action)
	require.Equal(t, "a.txt", changes[1].Path)
	require.True(t, changes[1].Flags.Content)
	require.False(t, changes[1].Flags.Attributes)
}

func TestChangesExpandsAddedDirectory(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)

	from := buildTree(t, ctx, ds, map[string]string{"a.txt": "a"})
	to := buildTree(t, ctx, ds, map[string]string{"a.txt": "a", "dir/x.txt": "x", "dir/y.txt": "y"})

	var changes []changelist.Change
	require.NoError(t, changelist.Collect(ds, &changes).Changes(ctx, from, to))

	paths := map[string]changelist.Action{}
	for _, c := range changes {
		paths[c.Path] = c.Action
	}
	require.Equal(t, changelist.ActionAdd, paths["dir"])
	require.Equal(t, changelist.ActionAdd, paths["dir/x.txt"])
	require.Equal(t, changelist.ActionAdd, paths["dir/y.txt"])
}

func TestChangesWithoutExpandAddedSkipsLeaves(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)

	from := buildTree(t, ctx, ds, map[string]string{"a.txt": "a"})
	to := buildTree(t, ctx, ds, map[string]string{"a.txt": "a", "dir/x.txt": "x"})

	var changes []changelist.Change
	require.NoError(t, changelist.Collect(ds, &changes).SetExpandAdded(false).Changes(ctx, from, to))

	// The root trees differ, so Changes also emits the leading root-level
	// directory change.
	require.Len(t, changes, 2)
	require.Equal(t, "", changes[0].Path)
	require.Equal(t, changelist.ActionAdd, changes[1].Action)
	require.Equal(t, "dir", changes[1].Path)
}

func TestChangesHonorsPathFilter(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)

	from := buildTree(t, ctx, ds, map[string]string{"a.txt": "a", "b.txt": "b"})
	to := buildTree(t, ctx, ds, map[string]string{"a.txt": "a-changed", "b.txt": "b-changed"})

	var changes []changelist.Change
	require.NoError(t, changelist.Collect(ds, &changes).SetInclude(changelist.NewPathFilter("a.txt")).Changes(ctx, from, to))

	// The root-level directory change always passes the filter (Match("")
	// is unconditionally true), so the filtered change set still carries it
	// ahead of the one selected leaf.
	require.Len(t, changes, 2)
	require.Equal(t, "", changes[0].Path)
	require.Equal(t, "a.txt", changes[1].Path)
}

func TestChangesSameTreeIsNoOp(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)

	id := buildTree(t, ctx, ds, map[string]string{"a.txt": "a"})

	var changes []changelist.Change
	require.NoError(t, changelist.Collect(ds, &changes).Changes(ctx, id, id))
	require.Empty(t, changes)
}

func TestPathFilterMatchAndIsParent(t *testing.T) {
	f := changelist.NewPathFilter("dir/sub")

	require.True(t, f.Match("dir/sub"))
	require.False(t, f.Match("dir"))
	require.False(t, f.Match("dir/other"))
	require.True(t, f.IsParent("dir"))
	require.True(t, f.IsParent("dir/sub"))
	require.False(t, f.IsParent("other"))
}
