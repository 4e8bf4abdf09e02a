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

// Package commit computes the generation number a new commit must carry
// (invariant 3: generation = 1 + max(generation(p) for p in parents, plus
// every commit named by the renames object's dense commit set).
package commit

import (
	"context"

	"github.com/quarryvcs/quarry/hash"
	"github.com/quarryvcs/quarry/internal/intmath"
	"github.com/quarryvcs/quarry/store"
)

// Generation computes the generation number for a commit with the given
// parents and, if non-nil, renamesId. A commit with no parents and no
// rename sources gets generation 1.
func Generation(ctx context.Context, ds *store.Datastore, parents []hash.Id, renamesID *hash.Id) (uint64, error) {
	var largest uint64
	for _, p := range parents {
		c, err := ds.LoadCommit(ctx, p)
		if err != nil {
			return 0, err
		}
		largest = intmath.Max(largest, c.Generation)
	}
	if renamesID != nil {
		rn, err := ds.LoadRenames(ctx, *renamesID)
		if err != nil {
			return 0, err
		}
		for _, id := range rn.Commits {
			c, err := ds.LoadCommit(ctx, id)
			if err != nil {
				return 0, err
			}
			largest = intmath.Max(largest, c.Generation)
		}
	}
	return largest + 1, nil
}
