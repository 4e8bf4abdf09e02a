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

// Package store defines the Backend contract and the Datastore façade that
// chains backends together with chunked put and transparent Index
// reassembly. Concrete backends live in the cache, loose, and pack
// subpackages.
package store

import (
	"context"

	"github.com/quarryvcs/quarry/hash"
)

// Meta is what GetMeta returns: enough to answer Exists/size/type queries
// without paying for a full Load.
type Meta struct {
	Kind hash.Kind
	Size uint64
}

// Backend is the contract any storage tier (memory cache, loose files, a
// pack level, or a remote upstream) must implement. All methods must be
// safe for concurrent use.
type Backend interface {
	// GetMeta returns the stored header for id, or (Meta{}, false, nil) if
	// this backend does not have id.
	GetMeta(ctx context.Context, id hash.Id) (Meta, bool, error)

	// Exists reports whether this backend holds id.
	Exists(ctx context.Context, id hash.Id) (bool, error)

	// Load returns the object stored under id. If this backend does not
	// have id, it returns (zero, false, nil) rather than an error — NotFound
	// is a façade-level concept, raised only once every chained backend has
	// been tried.
	Load(ctx context.Context, id hash.Id) (LoadResult, bool, error)

	// Put stores content under the given kind, computing its id.
	Put(ctx context.Context, kind hash.Kind, content []byte) (hash.Id, error)
}

// LoadResult is the raw (kind, bytes) pair a Backend hands back; the façade
// decides whether it satisfies an expected kind or needs Index reassembly.
type LoadResult struct {
	Kind    hash.Kind
	Payload []byte
}
