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

// Part names one blob fragment of a chunked logical object.
type Part struct {
	BlobId hash.Id
	Size   uint64
}

// Index describes how a large logical object was split into blob fragments.
// Concatenating the fragment payloads in order reconstructs the original.
type Index struct {
	OriginalId   hash.Id
	OriginalType hash.Kind
	PartList     []Part
}

// Id returns the id of the logical object this index reassembles into.
func (ix Index) Id() hash.Id { return ix.OriginalId }

// Type returns the logical kind this index reassembles into.
func (ix Index) Type() hash.Kind { return ix.OriginalType }

// Parts returns the ordered blob fragments.
func (ix Index) Parts() []Part { return ix.PartList }

// Size is the sum of all part sizes, which must equal the reassembled
// object's length (invariant 4).
func (ix Index) Size() uint64 {
	var total uint64
	for _, p := range ix.PartList {
		total += p.Size
	}
	return total
}

func decodeIndex(buf []byte) (Index, error) {
	r := wire.NewReader(buf)
	var ix Index
	var err error
	if ix.OriginalId, err = r.Id(); err != nil {
		return Index{}, fmt.Errorf("object: index original id: %w", err)
	}
	kindByte, err := r.Byte()
	if err != nil {
		return Index{}, fmt.Errorf("object: index original type: %w", err)
	}
	ix.OriginalType = hash.Kind(kindByte)
	if !ix.OriginalType.Valid() {
		return Index{}, fmt.Errorf("object: index original type: %w", hash.ErrUnknownKind)
	}
	partCount, err := r.Uvarint()
	if err != nil {
		return Index{}, fmt.Errorf("object: index part count: %w", err)
	}
	ix.PartList = make([]Part, partCount)
	for i := range ix.PartList {
		if ix.PartList[i].BlobId, err = r.Id(); err != nil {
			return Index{}, fmt.Errorf("object: index part %d id: %w", i, err)
		}
		if ix.PartList[i].Size, err = r.Uvarint(); err != nil {
			return Index{}, fmt.Errorf("object: index part %d size: %w", i, err)
		}
	}
	if !r.Done() {
		return Index{}, fmt.Errorf("object: index has trailing bytes")
	}
	return ix, nil
}
