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

// Package config loads the tuning knobs behind the storage engine from an
// optional TOML file at <root>/config.toml, falling back to the documented
// defaults (spec.md §4.3, §4.4, §4.6) when the file is absent.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Store holds every size/capacity/behavior knob the object store needs.
type Store struct {
	// ChunkSize is the Datastore façade's split threshold, default 4 MiB.
	ChunkSize uint64 `toml:"chunk_size"`
	// CacheCapacityBytes bounds the in-memory LRU backend, default 64 MiB.
	CacheCapacityBytes uint64 `toml:"cache_capacity_bytes"`
	// LooseMaxObjectBytes bounds a single loose file, default 128 MiB.
	LooseMaxObjectBytes uint64 `toml:"loose_max_object_bytes"`
	// MemtableCapacityBytes bounds a single L0 memtable file, default 8 MiB.
	MemtableCapacityBytes uint64 `toml:"memtable_capacity_bytes"`
	// SnapshotsToPack is both the L0 memtable-count trigger and the
	// per-level overfull threshold, default 4.
	SnapshotsToPack int `toml:"snapshots_to_pack"`
	// DeltaEnabled turns on intra-pack delta encoding during writes.
	DeltaEnabled bool `toml:"delta_enabled"`
	// DeltaMinObjectBytes is the smallest object size eligible for delta
	// encoding, default 64.
	DeltaMinObjectBytes uint64 `toml:"delta_min_object_bytes"`
	// DeltaKeepRatio is the fraction of original size a delta must beat to
	// be kept, default 0.85.
	DeltaKeepRatio float64 `toml:"delta_keep_ratio"`
	// DeltaWindow bounds how many recently emitted same-type records are
	// considered as delta base candidates, default 256.
	DeltaWindow int `toml:"delta_window"`
	// DeltaMaxChainDepth bounds delta chain length both when writing and
	// reading, default 64 for writing; reads tolerate up to 128 (§4.6.3).
	DeltaMaxChainDepth int `toml:"delta_max_chain_depth"`
}

// Default returns the documented defaults.
func Default() Store {
	return Store{
		ChunkSize:             4 << 20,
		CacheCapacityBytes:    64 << 20,
		LooseMaxObjectBytes:   128 << 20,
		MemtableCapacityBytes: 8 << 20,
		SnapshotsToPack:       4,
		DeltaEnabled:          true,
		DeltaMinObjectBytes:   64,
		DeltaKeepRatio:        0.85,
		DeltaWindow:           256,
		DeltaMaxChainDepth:    64,
	}
}

// Load reads path (TOML) and overlays it onto Default(). A missing file is
// not an error; it just yields the defaults.
func Load(path string) (Store, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Store{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return Store{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
