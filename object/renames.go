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

package object

import (
	"fmt"

	"github.com/quarryvcs/quarry/hash"
	"github.com/quarryvcs/quarry/internal/wire"
)

// Copy records that dest_path in the commit being built was copied from
// source_path as it existed in CommitIdx (an index into Renames.Commits).
type Copy struct {
	CommitIdx  int
	SourcePath string
	DestPath   string
}

// Replace is written by the stage area but, per the conservative reading of
// the format, carries no read semantics: changelist never consults it.
type Replace struct {
	SourcePath string
	DestPath   string
}

// Renames accompanies a Commit, naming the source commits its Copies draw
// from. Commits is the dense set of commits referenced by Copies and may
// include a commit absent from the commit's current parents.
type Renames struct {
	Commits  []hash.Id
	Copies   []Copy
	Replaces []Replace
}

func decodeRenames(buf []byte) (Renames, error) {
	r := wire.NewReader(buf)
	var rn Renames
	commitCount, err := r.Uvarint()
	if err != nil {
		return Renames{}, fmt.Errorf("object: renames commit count: %w", err)
	}
	rn.Commits = make([]hash.Id, commitCount)
	for i := range rn.Commits {
		if rn.Commits[i], err = r.Id(); err != nil {
			return Renames{}, fmt.Errorf("object: renames commit %d: %w", i, err)
		}
	}
	copyCount, err := r.Uvarint()
	if err != nil {
		return Renames{}, fmt.Errorf("object: renames copy count: %w", err)
	}
	rn.Copies = make([]Copy, copyCount)
	for i := range rn.Copies {
		idx, err := r.Uvarint()
		if err != nil {
			return Renames{}, fmt.Errorf("object: renames copy %d idx: %w", i, err)
		}
		rn.Copies[i].CommitIdx = int(idx)
		if rn.Copies[i].SourcePath, err = r.String(); err != nil {
			return Renames{}, fmt.Errorf("object: renames copy %d source: %w", i, err)
		}
		if rn.Copies[i].DestPath, err = r.String(); err != nil {
			return Renames{}, fmt.Errorf("object: renames copy %d dest: %w", i, err)
		}
	}
	replaceCount, err := r.Uvarint()
	if err != nil {
		return Renames{}, fmt.Errorf("object: renames replace count: %w", err)
	}
	rn.Replaces = make([]Replace, replaceCount)
	for i := range rn.Replaces {
		if rn.Replaces[i].SourcePath, err = r.String(); err != nil {
			return Renames{}, fmt.Errorf("object: renames replace %d source: %w", i, err)
		}
		if rn.Replaces[i].DestPath, err = r.String(); err != nil {
			return Renames{}, fmt.Errorf("object: renames replace %d dest: %w", i, err)
		}
	}
	if !r.Done() {
		return Renames{}, fmt.Errorf("object: renames has trailing bytes")
	}
	return rn, nil
}
