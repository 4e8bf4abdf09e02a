package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quarryvcs/quarry/hash"
	"github.com/quarryvcs/quarry/serialize"
	"github.com/quarryvcs/quarry/store"
	"github.com/quarryvcs/quarry/store/cache"
)

// memBackend is a trivial map-backed store.Backend, standing in for a real
// persistent tier in these façade-level tests.
type memBackend struct {
	mu   sync.Mutex
	objs map[hash.Id]store.LoadResult
}

func newMemBackend() *memBackend {
	return &memBackend{objs: make(map[hash.Id]store.LoadResult)}
}

func (m *memBackend) GetMeta(_ context.Context, id hash.Id) (store.Meta, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objs[id]
	if !ok {
		return store.Meta{}, false, nil
	}
	return store.Meta{Kind: o.Kind, Size: uint64(len(o.Payload))}, true, nil
}

func (m *memBackend) Exists(ctx context.Context, id hash.Id) (bool, error) {
	_, ok, err := m.GetMeta(ctx, id)
	return ok, err
}

func (m *memBackend) Load(_ context.Context, id hash.Id) (store.LoadResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objs[id]
	return o, ok, nil
}

func (m *memBackend) Put(_ context.Context, kind hash.Kind, content []byte) (hash.Id, error) {
	id, err := hash.Sum(kind, content)
	if err != nil {
		return hash.Id{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), content...)
	m.objs[id] = store.LoadResult{Kind: kind, Payload: cp}
	return id, nil
}

func TestPutRejectsZeroChunkSize(t *testing.T) {
	ds := store.NewDatastore(0, newMemBackend())
	_, _, err := ds.Put(context.Background(), hash.KindBlob, []byte("content"))
	require.Error(t, err)
	code, ok := store.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, store.CodeInvalidArgument, code)
}

func TestPutLoadRoundTrip(t *testing.T) {
	primary := newMemBackend()
	ds := store.NewDatastore(1<<20, primary)
	ctx := context.Background()

	id, kind, err := ds.Put(ctx, hash.KindBlob, []byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, hash.KindBlob, kind)

	blob, err := ds.LoadBlob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), blob.Bytes())
}

func TestLoadMissingIsNotFound(t *testing.T) {
	ds := store.NewDatastore(1<<20, newMemBackend())
	var zero hash.Id
	_, err := ds.Load(context.Background(), zero)
	require.Error(t, err)
	code, ok := store.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, store.CodeNotFound, code)
}

func TestLoadBlobWrongKindIsTypeMismatch(t *testing.T) {
	primary := newMemBackend()
	ds := store.NewDatastore(1<<20, primary)
	ctx := context.Background()

	id, _, err := ds.Put(ctx, hash.KindTree, []byte{0})
	require.NoError(t, err)

	_, err = ds.LoadBlob(ctx, id)
	require.Error(t, err)
	code, ok := store.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, store.CodeTypeMismatch, code)
}

func TestChunkedPutReassemblesThroughIndex(t *testing.T) {
	primary := newMemBackend()
	ds := store.NewDatastore(4, primary) // tiny chunk size forces splitting
	ctx := context.Background()

	content := []byte("0123456789abcdef") // 16 bytes, 4 parts of 4
	id, kind, err := ds.Put(ctx, hash.KindBlob, content)
	require.NoError(t, err)
	require.Equal(t, hash.KindIndex, kind)

	ix, err := ds.LoadIndex(ctx, id)
	require.NoError(t, err)
	require.Len(t, ix.Parts(), 4)
	require.Equal(t, uint64(16), ix.Size())

	blob, err := ds.LoadBlob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, content, blob.Bytes())
}

func TestCachePopulatedOnUpstreamHit(t *testing.T) {
	primary := newMemBackend()
	c := cache.New(1<<20, nil)
	ds := store.NewDatastore(1<<20, primary, store.WithReadThrough(c), store.WithCache(c))
	ctx := context.Background()

	// Writing to the primary directly bypasses the façade's Put, so the cache
	// starts cold and the load below is served by the primary.
	id, err := primary.Put(ctx, hash.KindBlob, []byte("warm me"))
	require.NoError(t, err)
	require.Equal(t, 0, c.Len())

	_, err = ds.LoadBlob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
}

func TestGetMetaResolvesIndex(t *testing.T) {
	primary := newMemBackend()
	ds := store.NewDatastore(4, primary)
	ctx := context.Background()

	id, _, err := ds.Put(ctx, hash.KindBlob, []byte("0123456789"))
	require.NoError(t, err)

	meta, err := ds.GetMeta(ctx, id, true)
	require.NoError(t, err)
	require.Equal(t, hash.KindBlob, meta.Kind)
	require.Equal(t, uint64(10), meta.Size)

	meta, err = ds.GetMeta(ctx, id, false)
	require.NoError(t, err)
	require.Equal(t, hash.KindIndex, meta.Kind)
}

func TestGetTreeIdResolvesCommit(t *testing.T) {
	primary := newMemBackend()
	ds := store.NewDatastore(1<<20, primary)
	ctx := context.Background()

	treeID, _, err := ds.Put(ctx, hash.KindTree, []byte{0})
	require.NoError(t, err)

	resolved, err := ds.GetTreeId(ctx, treeID)
	require.NoError(t, err)
	require.Equal(t, treeID, resolved)

	commitBuf, err := serialize.BuildCommit(serialize.CommitInput{TreeId: treeID, Generation: 1, Message: "m"})
	require.NoError(t, err)
	commitID, _, err := ds.Put(ctx, hash.KindCommit, commitBuf)
	require.NoError(t, err)

	resolved, err = ds.GetTreeId(ctx, commitID)
	require.NoError(t, err)
	require.Equal(t, treeID, resolved)
}
