// Copyright 2026 The Quarry Authors
// This file is part of Quarry.
//
// Quarry is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Quarry is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Quarry. If not, see <http://www.gnu.org/licenses/>.

package store

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quarryvcs/quarry/hash"
	"github.com/quarryvcs/quarry/metrics"
	"github.com/quarryvcs/quarry/object"
	"github.com/quarryvcs/quarry/serialize"
)

// partFetchParallelism bounds how many index parts are loaded concurrently
// when reassembling a chunked object.
const partFetchParallelism = 8

const facadeName = "datastore"

// Populator is implemented by a backend that can be warmed from content the
// façade already has in hand, without paying for a round trip through its
// own Put. cache.Memory satisfies this with its Insert method.
type Populator interface {
	Insert(id hash.Id, kind hash.Kind, payload []byte)
}

// Datastore is the chained-backend façade: an ordered list of read tiers
// consulted from fastest to most durable, a single primary tier that Put
// writes through to, chunked storage of oversized content via Index
// objects, and transparent Index reassembly on load.
//
// Unlike the source's every-level write-through Put, only the primary
// (most durable) backend is written to; earlier tiers are populated via
// Populator when a tier after the first serves a read, or right after a Put —
// see DESIGN.md for the rationale.
type Datastore struct {
	chunkSize uint64
	chain     []Backend
	primary   Backend
	populate  Populator
	metrics   *metrics.Store
	log       *zap.Logger

	closers []func() error
}

// Option configures a Datastore at construction time.
type Option func(*Datastore)

// WithReadThrough prepends additional backends searched, in order, before
// the primary backend on GetMeta/Exists/Load.
func WithReadThrough(backends ...Backend) Option {
	return func(d *Datastore) { d.chain = append(d.chain, backends...) }
}

// WithCache designates p as the tier warmed when a tier after the first
// serves a read, or on a successful Put ("caching mode" in the source's terms).
func WithCache(p Populator) Option {
	return func(d *Datastore) { d.populate = p }
}

// WithMetrics wires Prometheus instrumentation into the façade.
func WithMetrics(m *metrics.Store) Option {
	return func(d *Datastore) { d.metrics = m }
}

// WithLogger wires structured logging into the façade. A nil logger (the
// default) behaves as zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(d *Datastore) { d.log = l }
}

// NewDatastore builds a façade around primary (the Put target and final
// read fallback) with chunkSize bounding single-object storage before a
// content is split across an Index.
func NewDatastore(chunkSize uint64, primary Backend, opts ...Option) *Datastore {
	d := &Datastore{chunkSize: chunkSize, primary: primary}
	for _, opt := range opts {
		opt(d)
	}
	d.chain = append(d.chain, primary)
	if d.log == nil {
		d.log = zap.NewNop()
	}
	return d
}

// RegisterCloser adds fn to the set run, in reverse registration order, by
// Close. Used by composition code (see the root quarry package) to tie a
// pack store's Close and a root lock's Unlock to the façade's lifetime.
func (d *Datastore) RegisterCloser(fn func() error) {
	d.closers = append(d.closers, fn)
}

// Close runs every registered closer, collecting all errors.
func (d *Datastore) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Datastore) observe(op, outcome string) {
	if d.metrics != nil {
		d.metrics.Op(facadeName, op, outcome)
	}
}

// rawMeta searches the chain in order for id's header.
func (d *Datastore) rawMeta(ctx context.Context, id hash.Id) (Meta, bool, error) {
	for _, b := range d.chain {
		m, ok, err := b.GetMeta(ctx, id)
		if err != nil {
			return Meta{}, false, err
		}
		if ok {
			return m, true, nil
		}
	}
	return Meta{}, false, nil
}

// GetMeta returns id's header. With resolve, an Index header is replaced by
// the logical (kind, size) it reassembles into.
func (d *Datastore) GetMeta(ctx context.Context, id hash.Id, resolve bool) (Meta, error) {
	m, found, err := d.rawMeta(ctx, id)
	if err != nil {
		d.observe("get_meta", "error")
		return Meta{}, err
	}
	if !found {
		d.observe("get_meta", "miss")
		return Meta{}, NotFoundf("datastore.get_meta", "id %s", id)
	}
	d.observe("get_meta", "hit")
	if resolve && m.Kind == hash.KindIndex {
		ix, err := d.LoadIndex(ctx, id)
		if err != nil {
			return Meta{}, err
		}
		return Meta{Kind: ix.Type(), Size: ix.Size()}, nil
	}
	return m, nil
}

// GetType is GetMeta narrowed to the kind.
func (d *Datastore) GetType(ctx context.Context, id hash.Id, resolve bool) (hash.Kind, error) {
	m, err := d.GetMeta(ctx, id, resolve)
	if err != nil {
		return 0, err
	}
	return m.Kind, nil
}

// Exists reports whether any chained backend holds id.
func (d *Datastore) Exists(ctx context.Context, id hash.Id) (bool, error) {
	for _, b := range d.chain {
		ok, err := b.Exists(ctx, id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// rawLoad returns the first hit across the chain, populating the cache
// backend when the hit came from a tier other than the first.
func (d *Datastore) rawLoad(ctx context.Context, id hash.Id) (LoadResult, bool, error) {
	for i, b := range d.chain {
		lr, ok, err := b.Load(ctx, id)
		if err != nil {
			return LoadResult{}, false, err
		}
		if !ok {
			continue
		}
		if i > 0 && d.populate != nil {
			d.populate.Insert(id, lr.Kind, lr.Payload)
		}
		return lr, true, nil
	}
	return LoadResult{}, false, nil
}

// Load returns id's object without checking its kind.
func (d *Datastore) Load(ctx context.Context, id hash.Id) (object.Object, error) {
	lr, found, err := d.rawLoad(ctx, id)
	if err != nil {
		d.observe("load", "error")
		return object.Object{}, err
	}
	if !found {
		d.observe("load", "miss")
		return object.Object{}, NotFoundf("datastore.load", "id %s", id)
	}
	d.observe("load", "hit")
	return object.Load(lr.Kind, lr.Payload)
}

// loadExpect loads id, requiring its stored kind to be either expected or
// Index (the caller resolves the latter itself).
func (d *Datastore) loadExpect(ctx context.Context, id hash.Id, expected hash.Kind) (object.Object, error) {
	lr, found, err := d.rawLoad(ctx, id)
	if err != nil {
		d.observe("load", "error")
		return object.Object{}, err
	}
	if !found {
		d.observe("load", "miss")
		return object.Object{}, NotFoundf("datastore.load", "id %s", id)
	}
	if lr.Kind != expected && lr.Kind != hash.KindIndex {
		d.observe("load", "error")
		return object.Object{}, TypeMismatchf("datastore.load", "id %s: want %s, have %s", id, expected, lr.Kind)
	}
	d.observe("load", "hit")
	return object.Load(lr.Kind, lr.Payload)
}

// loadResolved loads id expecting kind expected, transparently reassembling
// through an Index object when that is what is actually stored.
func (d *Datastore) loadResolved(ctx context.Context, id hash.Id, expected hash.Kind) (object.Object, error) {
	o, err := d.loadExpect(ctx, id, expected)
	if err != nil {
		return object.Object{}, err
	}
	if o.Kind() != hash.KindIndex {
		return o, nil
	}
	ix, err := o.AsIndex()
	if err != nil {
		return object.Object{}, err
	}
	if ix.Type() != expected {
		return object.Object{}, TypeMismatchf("datastore.load", "id %s: index resolves to %s, want %s", id, ix.Type(), expected)
	}
	parts := ix.Parts()
	chunks := make([][]byte, len(parts))
	if len(parts) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		sem := make(chan struct{}, partFetchParallelism)
		for i, p := range parts {
			i, p := i, p
			g.Go(func() error {
				select {
				case sem <- struct{}{}:
				case <-gctx.Done():
					return gctx.Err()
				}
				defer func() { <-sem }()
				chunk, err := d.loadPart(gctx, id, p)
				if err != nil {
					return err
				}
				chunks[i] = chunk
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return object.Object{}, err
		}
	} else {
		for i, p := range parts {
			chunk, err := d.loadPart(ctx, id, p)
			if err != nil {
				return object.Object{}, err
			}
			chunks[i] = chunk
		}
	}

	buf := make([]byte, 0, ix.Size())
	for _, c := range chunks {
		buf = append(buf, c...)
	}
	if uint64(len(buf)) != ix.Size() {
		return object.Object{}, Corruptf("datastore.load", "index %s: reassembled %d bytes, declared %d", id, len(buf), ix.Size())
	}
	return object.Load(ix.Type(), buf)
}

// loadPart fetches and validates a single index part's bytes.
func (d *Datastore) loadPart(ctx context.Context, id hash.Id, p object.Part) ([]byte, error) {
	part, err := d.loadExpect(ctx, p.BlobId, hash.KindBlob)
	if err != nil {
		return nil, err
	}
	blob, err := part.AsBlob()
	if err != nil {
		return nil, err
	}
	if uint64(blob.Size()) != p.Size {
		return nil, Corruptf("datastore.load", "index %s: part %s size %d, declared %d", id, p.BlobId, blob.Size(), p.Size)
	}
	return blob.Bytes(), nil
}

// LoadBlob loads id as a blob, reassembling through an Index if needed.
func (d *Datastore) LoadBlob(ctx context.Context, id hash.Id) (object.Blob, error) {
	o, err := d.loadResolved(ctx, id, hash.KindBlob)
	if err != nil {
		return object.Blob{}, err
	}
	return o.AsBlob()
}

// LoadTree loads id as a tree, reassembling through an Index if needed.
func (d *Datastore) LoadTree(ctx context.Context, id hash.Id) (*object.Tree, error) {
	o, err := d.loadResolved(ctx, id, hash.KindTree)
	if err != nil {
		return nil, err
	}
	return o.AsTree()
}

// LoadCommit loads id as a commit, reassembling through an Index if needed.
func (d *Datastore) LoadCommit(ctx context.Context, id hash.Id) (object.Commit, error) {
	o, err := d.loadResolved(ctx, id, hash.KindCommit)
	if err != nil {
		return object.Commit{}, err
	}
	return o.AsCommit()
}

// LoadRenames loads id as a renames object, reassembling through an Index
// if needed.
func (d *Datastore) LoadRenames(ctx context.Context, id hash.Id) (object.Renames, error) {
	o, err := d.loadResolved(ctx, id, hash.KindRenames)
	if err != nil {
		return object.Renames{}, err
	}
	return o.AsRenames()
}

// LoadIndex loads id as an index object. Index objects are never
// themselves chunked, so no reassembly applies.
func (d *Datastore) LoadIndex(ctx context.Context, id hash.Id) (object.Index, error) {
	o, err := d.loadExpect(ctx, id, hash.KindIndex)
	if err != nil {
		return object.Index{}, err
	}
	return o.AsIndex()
}

func (d *Datastore) putRaw(ctx context.Context, kind hash.Kind, content []byte) (hash.Id, error) {
	id, err := d.primary.Put(ctx, kind, content)
	if err != nil {
		d.observe("put", "error")
		return hash.Id{}, err
	}
	if d.populate != nil {
		d.populate.Insert(id, kind, content)
	}
	d.observe("put", "written")
	d.log.Debug("datastore.put", zap.String("id", id.String()), zap.String("kind", kind.String()), zap.Int("size", len(content)))
	return id, nil
}

// Put stores content under kind, splitting it across blob parts behind an
// Index object when it exceeds the façade's chunk size. It returns the id
// to address the logical object by and the kind actually stored at that id
// (kind, or Index when split).
func (d *Datastore) Put(ctx context.Context, kind hash.Kind, content []byte) (hash.Id, hash.Kind, error) {
	if d.chunkSize == 0 {
		return hash.Id{}, 0, InvalidArgumentf("datastore.put", "chunk size must be positive")
	}
	if uint64(len(content)) <= d.chunkSize {
		id, err := d.putRaw(ctx, kind, content)
		if err != nil {
			return hash.Id{}, 0, err
		}
		return id, kind, nil
	}

	originalID, err := hash.Sum(kind, content)
	if err != nil {
		return hash.Id{}, 0, InvalidArgumentf("datastore.put", "%v", err)
	}

	var parts []object.Part
	for offset := 0; offset < len(content); {
		size := d.chunkSize
		if remaining := uint64(len(content) - offset); remaining < size {
			size = remaining
		}
		blobID, err := d.putRaw(ctx, hash.KindBlob, content[offset:offset+int(size)])
		if err != nil {
			return hash.Id{}, 0, err
		}
		parts = append(parts, object.Part{BlobId: blobID, Size: size})
		offset += int(size)
	}

	ixBytes, err := serialize.BuildIndex(serialize.IndexInput{OriginalId: originalID, OriginalType: kind, Parts: parts})
	if err != nil {
		return hash.Id{}, 0, Corruptf("datastore.put", "build index: %w", err)
	}
	ixID, err := d.putRaw(ctx, hash.KindIndex, ixBytes)
	if err != nil {
		return hash.Id{}, 0, err
	}
	return ixID, hash.KindIndex, nil
}

// GetTreeId ensures id names a Tree object, resolving through a Commit's
// root tree when it does not.
func (d *Datastore) GetTreeId(ctx context.Context, id hash.Id) (hash.Id, error) {
	kind, err := d.GetType(ctx, id, true)
	if err != nil {
		return hash.Id{}, err
	}
	if kind == hash.KindTree {
		return id, nil
	}
	c, err := d.LoadCommit(ctx, id)
	if err != nil {
		return hash.Id{}, err
	}
	return c.TreeId, nil
}
