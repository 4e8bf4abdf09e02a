package commit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quarryvcs/quarry/commit"
	"github.com/quarryvcs/quarry/hash"
	"github.com/quarryvcs/quarry/object"
	"github.com/quarryvcs/quarry/serialize"
	"github.com/quarryvcs/quarry/store"
	"github.com/quarryvcs/quarry/store/cache"
)

func newTestDatastore(t *testing.T) *store.Datastore {
	t.Helper()
	c := cache.New(1<<20, nil)
	return store.NewDatastore(1<<20, c, store.WithCache(c))
}

func putCommit(t *testing.T, ctx context.Context, ds *store.Datastore, parents []hash.Id, generation uint64) hash.Id {
	t.Helper()
	buf, err := serialize.BuildCommit(serialize.CommitInput{
		TreeId:     hash.Id{},
		Generation: generation,
		Parents:    parents,
		Message:    "m",
	})
	require.NoError(t, err)
	id, _, err := ds.Put(ctx, hash.KindCommit, buf)
	require.NoError(t, err)
	return id
}

func TestGenerationNoParentsIsOne(t *testing.T) {
	ds := newTestDatastore(t)
	gen, err := commit.Generation(context.Background(), ds, nil, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), gen)
}

func TestGenerationIsOneMoreThanMaxParent(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)
	p1 := putCommit(t, ctx, ds, nil, 3)
	p2 := putCommit(t, ctx, ds, nil, 5)

	gen, err := commit.Generation(ctx, ds, []hash.Id{p1, p2}, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(6), gen)
}

func TestGenerationConsidersRenameSources(t *testing.T) {
	ctx := context.Background()
	ds := newTestDatastore(t)
	p1 := putCommit(t, ctx, ds, nil, 2)
	foreign := putCommit(t, ctx, ds, nil, 9)

	rnBuf, err := serialize.BuildRenames(serialize.RenamesInput{
		Commits: []hash.Id{foreign},
		Copies: []object.Copy{
			{CommitIdx: 0, SourcePath: "a", DestPath: "b"},
		},
	})
	require.NoError(t, err)
	rnID, _, err := ds.Put(ctx, hash.KindRenames, rnBuf)
	require.NoError(t, err)

	gen, err := commit.Generation(ctx, ds, []hash.Id{p1}, &rnID)
	require.NoError(t, err)
	require.Equal(t, uint64(10), gen)
}
