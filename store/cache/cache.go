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

// Package cache implements the in-memory hot-object backend: an LRU bounded
// by total byte size rather than entry count. It wraps
// hashicorp/golang-lru/v2's ordered map and eviction callback with a running
// size counter, since the upstream LRU is count-bounded only.
package cache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/quarryvcs/quarry/hash"
	"github.com/quarryvcs/quarry/metrics"
	"github.com/quarryvcs/quarry/store"
)

const backendName = "cache"

// unboundedCount is large enough that the wrapped LRU never evicts on count;
// all eviction here is driven by the byte-size budget instead.
const unboundedCount = 1 << 30

type entry struct {
	kind    hash.Kind
	payload []byte
}

func (e entry) size() uint64 {
	return uint64(len(e.payload)) + hash.Size + 1
}

// Memory is a byte-size-bounded LRU object cache. It implements store.Backend
// but Put is a no-op that never errors: populating the cache is done via
// Insert, called by the façade after a successful upstream load ("caching
// mode") or a successful Put.
type Memory struct {
	mu       sync.Mutex
	capacity uint64
	used     uint64
	lru      *lru.LRU[hash.Id, entry]
	metrics  *metrics.Store
}

// New creates a Memory cache bounded at capacityBytes total entry size.
func New(capacityBytes uint64, m *metrics.Store) *Memory {
	c := &Memory{capacity: capacityBytes, metrics: m}
	l, _ := lru.NewLRU[hash.Id, entry](unboundedCount, func(_ hash.Id, e entry) {
		c.used -= e.size()
	})
	c.lru = l
	return c
}

// Insert adds or refreshes id in the cache, evicting from the LRU end until
// the byte budget is satisfied. Eviction happens outside of any caller's
// critical section other than this method's own lock.
func (c *Memory) Insert(id hash.Id, kind hash.Kind, payload []byte) {
	e := entry{kind: kind, payload: payload}
	if e.size() > c.capacity {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.lru.Peek(id); ok {
		c.used -= old.size()
	}
	c.lru.Add(id, e)
	c.used += e.size()
	for c.used > c.capacity {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
	if c.metrics != nil {
		c.metrics.SetCacheBytes(c.used)
	}
}

func (c *Memory) GetMeta(_ context.Context, id hash.Id) (store.Meta, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Get(id)
	if !ok {
		c.observe("get_meta", "miss")
		return store.Meta{}, false, nil
	}
	c.observe("get_meta", "hit")
	return store.Meta{Kind: e.kind, Size: uint64(len(e.payload))}, true, nil
}

func (c *Memory) Exists(ctx context.Context, id hash.Id) (bool, error) {
	_, ok, err := c.GetMeta(ctx, id)
	return ok, err
}

func (c *Memory) Load(_ context.Context, id hash.Id) (store.LoadResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Get(id)
	if !ok {
		c.observe("load", "miss")
		return store.LoadResult{}, false, nil
	}
	c.observe("load", "hit")
	return store.LoadResult{Kind: e.kind, Payload: e.payload}, true, nil
}

// Put computes id but does not insert: the façade decides what is worth
// caching via Insert, so a plain Put through the chain does not thrash it.
func (c *Memory) Put(_ context.Context, kind hash.Kind, content []byte) (hash.Id, error) {
	return hash.Sum(kind, content)
}

func (c *Memory) observe(op, outcome string) {
	if c.metrics != nil {
		c.metrics.Op(backendName, op, outcome)
	}
}

// Len reports the current entry count, for tests and diagnostics.
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// UsedBytes reports the current tracked byte occupancy.
func (c *Memory) UsedBytes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}
