package revwalk_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quarryvcs/quarry/hash"
	"github.com/quarryvcs/quarry/object"
	"github.com/quarryvcs/quarry/revwalk"
	"github.com/quarryvcs/quarry/serialize"
	"github.com/quarryvcs/quarry/store"
	"github.com/quarryvcs/quarry/store/cache"
)

func newTestDatastore(t *testing.T) *store.Datastore {
	t.Helper()
	c := cache.New(1<<20, nil)
	return store.NewDatastore(1<<20, c, store.WithCache(c))
}

func putCommit(t *testing.T, ctx context.Context, ds *store.Datastore, parents []hash.Id, generation uint64, when int64) hash.Id {
	t.Helper()
	buf, err := serialize.BuildCommit(serialize.CommitInput{
		Generation: generation,
		Parents:    parents,
		Message:    "m",
		Committer:  object.Signature{Id: hash.Id{0x01}, Name: "t", When: when},
	})
	require.NoError(t, err)
	id, _, err := ds.Put(ctx, hash.KindCommit, buf)
	require.NoError(t, err)
	return id
}

func TestWalkLinearFirstParent(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)

	c1 := putCommit(t, ctx, ds, nil, 1, 100)
	c2 := putCommit(t, ctx, ds, []hash.Id{c1}, 2, 200)
	c3 := putCommit(t, ctx, ds, []hash.Id{c2}, 3, 300)

	g := revwalk.NewGraph(ds)
	var seen []hash.Id
	err := revwalk.NewWalker(g).Push(c3).SimplifyFirstParent(true).Walk(ctx, func(r revwalk.Revision) revwalk.WalkAction {
		seen = append(seen, r.Id)
		return revwalk.ActionContinue
	})
	require.NoError(t, err)
	require.Equal(t, []hash.Id{c3, c2, c1}, seen)
}

func TestWalkGenericMergesTwoParents(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)

	base := putCommit(t, ctx, ds, nil, 1, 100)
	left := putCommit(t, ctx, ds, []hash.Id{base}, 2, 200)
	right := putCommit(t, ctx, ds, []hash.Id{base}, 2, 150)
	merge := putCommit(t, ctx, ds, []hash.Id{left, right}, 3, 300)

	g := revwalk.NewGraph(ds)
	var seen []hash.Id
	err := revwalk.NewWalker(g).Push(merge).Walk(ctx, func(r revwalk.Revision) revwalk.WalkAction {
		seen = append(seen, r.Id)
		return revwalk.ActionContinue
	})
	require.NoError(t, err)
	require.Len(t, seen, 4)
	require.Equal(t, merge, seen[0])
	require.Contains(t, seen, base)
	require.Contains(t, seen, left)
	require.Contains(t, seen, right)
	// base (the shared ancestor) must not be visited before both of its
	// children have been.
	require.Equal(t, base, seen[len(seen)-1])
}

func TestWalkHideExcludesAncestors(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)

	c1 := putCommit(t, ctx, ds, nil, 1, 100)
	c2 := putCommit(t, ctx, ds, []hash.Id{c1}, 2, 200)
	c3 := putCommit(t, ctx, ds, []hash.Id{c2}, 3, 300)

	g := revwalk.NewGraph(ds)
	var seen []hash.Id
	err := revwalk.NewWalker(g).Push(c3).Hide(c2).Walk(ctx, func(r revwalk.Revision) revwalk.WalkAction {
		seen = append(seen, r.Id)
		return revwalk.ActionContinue
	})
	require.NoError(t, err)
	require.Equal(t, []hash.Id{c3}, seen)
}

func TestWalkGenerationRange(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)

	c1 := putCommit(t, ctx, ds, nil, 1, 100)
	c2 := putCommit(t, ctx, ds, []hash.Id{c1}, 2, 200)
	c3 := putCommit(t, ctx, ds, []hash.Id{c2}, 3, 300)

	g := revwalk.NewGraph(ds)
	var seen []hash.Id
	err := revwalk.NewWalker(g).Push(c3).GenerationFrom(2).GenerationTo(2).Walk(ctx, func(r revwalk.Revision) revwalk.WalkAction {
		seen = append(seen, r.Id)
		return revwalk.ActionContinue
	})
	require.NoError(t, err)
	require.Equal(t, []hash.Id{c2}, seen)
}

func TestWalkStopEndsImmediately(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)

	c1 := putCommit(t, ctx, ds, nil, 1, 100)
	c2 := putCommit(t, ctx, ds, []hash.Id{c1}, 2, 200)

	g := revwalk.NewGraph(ds)
	var seen []hash.Id
	err := revwalk.NewWalker(g).Push(c2).Walk(ctx, func(r revwalk.Revision) revwalk.WalkAction {
		seen = append(seen, r.Id)
		return revwalk.ActionStop
	})
	require.NoError(t, err)
	require.Equal(t, []hash.Id{c2}, seen)
}

func TestWalkMissingParentIsHardError(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)

	var missingParent hash.Id
	missingParent[0] = 0xAB
	c2 := putCommit(t, ctx, ds, []hash.Id{missingParent}, 2, 200)

	g := revwalk.NewGraph(ds)
	err := revwalk.NewWalker(g).Push(c2).Walk(ctx, func(r revwalk.Revision) revwalk.WalkAction {
		return revwalk.ActionContinue
	})
	require.Error(t, err)
	code, ok := store.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, store.CodeNotFound, code)
}
