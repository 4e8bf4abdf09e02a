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

// Package revwalk traverses the commit graph by generation number: a
// Graph caches Revision records (a commit's id, generation, timestamp,
// tree and parents) on first touch, and a Walker fans out from a set of
// root commits, optionally hiding whole ancestries, down to a generation
// floor.
package revwalk

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/quarryvcs/quarry/hash"
	"github.com/quarryvcs/quarry/store"
)

// Revision is the graph-relevant projection of a Commit object.
type Revision struct {
	Id         hash.Id
	Generation uint64
	Timestamp  int64
	TreeId     hash.Id
	Parents    []hash.Id
}

// Graph lazily loads and caches Revision records from a Datastore. Safe
// for concurrent use.
type Graph struct {
	ds  *store.Datastore
	log *zap.Logger

	mu    sync.RWMutex
	cache map[hash.Id]Revision
}

// GraphOption configures a Graph at construction time.
type GraphOption func(*Graph)

// WithLogger wires structured logging into the graph and the walkers built
// from it. A nil logger behaves as zap.NewNop().
func WithLogger(l *zap.Logger) GraphOption {
	return func(g *Graph) { g.log = l }
}

// NewGraph builds an empty revision cache backed by ds.
func NewGraph(ds *store.Datastore, opts ...GraphOption) *Graph {
	g := &Graph{ds: ds, cache: make(map[hash.Id]Revision)}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = zap.NewNop()
	}
	return g
}

// GetRevision returns id's Revision, loading and caching it from the
// Datastore on first touch.
func (g *Graph) GetRevision(ctx context.Context, id hash.Id) (Revision, error) {
	g.mu.RLock()
	r, ok := g.cache[id]
	g.mu.RUnlock()
	if ok {
		return r, nil
	}

	c, err := g.ds.LoadCommit(ctx, id)
	if err != nil {
		return Revision{}, err
	}
	r = Revision{
		Id:         id,
		Generation: c.Generation,
		Timestamp:  c.Timestamp(),
		TreeId:     c.TreeId,
		Parents:    c.Parents,
	}

	g.mu.Lock()
	g.cache[id] = r
	g.mu.Unlock()
	return r, nil
}
