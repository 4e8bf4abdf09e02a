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

// Package quarry is the composition root: it wires the in-memory cache,
// loose fallback, and compacting pack store from the store subpackages
// behind a single Datastore façade, rooted at one directory on disk. This
// is the one place all four pieces (store, store/cache, store/loose,
// store/pack) come together into an openable object store.
package quarry

import (
	"path/filepath"

	"go.uber.org/zap"

	"github.com/quarryvcs/quarry/config"
	"github.com/quarryvcs/quarry/metrics"
	"github.com/quarryvcs/quarry/store"
	"github.com/quarryvcs/quarry/store/cache"
	"github.com/quarryvcs/quarry/store/loose"
	"github.com/quarryvcs/quarry/store/pack"
)

// Option configures Open.
type Option func(*options)

type options struct {
	metrics *metrics.Store
	logger  *zap.Logger
}

// WithMetrics wires Prometheus instrumentation through every tier.
func WithMetrics(m *metrics.Store) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger wires structured logging into the Datastore façade.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Open assembles the full tiered store rooted at root: an in-memory LRU
// cache and a loose per-file tier read ahead of the compacting pack store,
// which is both the primary write target and final read fallback. Opening
// for writes (readOnly false) takes the pack store's exclusive root lock on
// <root>/LOCK for the lifetime of the returned Datastore; opening read-only
// skips it. Closing the returned Datastore closes the pack store and, for a
// write open, releases the lock.
func Open(root string, cfg config.Store, readOnly bool, opts ...Option) (*store.Datastore, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	l, err := loose.New(filepath.Join(root, "loose"), cfg.LooseMaxObjectBytes, loose.WithMetrics(o.metrics))
	if err != nil {
		return nil, err
	}

	p, err := pack.Open(root, cfg, o.metrics, readOnly)
	if err != nil {
		return nil, err
	}

	c := cache.New(cfg.CacheCapacityBytes, o.metrics)

	ds := store.NewDatastore(cfg.ChunkSize, p,
		store.WithReadThrough(c, l),
		store.WithCache(c),
		store.WithMetrics(o.metrics),
		store.WithLogger(o.logger),
	)
	ds.RegisterCloser(p.Close)
	return ds, nil
}

// OpenReadOnly opens root for reads only: no root lock is taken and Put
// fails on the underlying pack store.
func OpenReadOnly(root string, cfg config.Store, opts ...Option) (*store.Datastore, error) {
	return Open(root, cfg, true, opts...)
}
