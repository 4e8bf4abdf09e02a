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
	"sort"
	"sync"

	"github.com/quarryvcs/quarry/internal/wire"
)

// Tree is a read-only view over a canonical tree payload. Entries are parsed
// on first access and cached; the view itself is cheap to copy.
type Tree struct {
	buf      []byte
	once     sync.Once
	parsed   []Entry
	parseErr error
}

func decodeTreeEntries(buf []byte) ([]Entry, error) {
	r := wire.NewReader(buf)
	count, err := r.Uvarint()
	if err != nil {
		return nil, fmt.Errorf("object: tree count: %w", err)
	}
	entries := make([]Entry, 0, count)
	var prevName string
	for i := uint64(0); i < count; i++ {
		name, err := r.String()
		if err != nil {
			return nil, fmt.Errorf("object: tree entry %d name: %w", i, err)
		}
		typeByte, err := r.Byte()
		if err != nil {
			return nil, fmt.Errorf("object: tree entry %d type: %w", i, err)
		}
		id, err := r.Id()
		if err != nil {
			return nil, fmt.Errorf("object: tree entry %d id: %w", i, err)
		}
		size, err := r.Uvarint()
		if err != nil {
			return nil, fmt.Errorf("object: tree entry %d size: %w", i, err)
		}
		if i > 0 && name <= prevName {
			return nil, fmt.Errorf("object: tree entries not strictly ascending at %q", name)
		}
		prevName = name
		entries = append(entries, Entry{
			Name: name,
			Id:   id,
			Type: EntryType(typeByte),
			Size: size,
		})
	}
	if !r.Done() {
		return nil, fmt.Errorf("object: tree has trailing bytes")
	}
	return entries, nil
}

// Entries returns the tree's children in ascending-name order.
func (t *Tree) Entries() ([]Entry, error) {
	t.once.Do(func() {
		t.parsed, t.parseErr = decodeTreeEntries(t.buf)
	})
	return t.parsed, t.parseErr
}

// Find performs a binary search for name, returning (entry, true) on a hit.
func (t *Tree) Find(name string) (Entry, bool, error) {
	entries, err := t.Entries()
	if err != nil {
		return Entry{}, false, err
	}
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Name >= name })
	if i < len(entries) && entries[i].Name == name {
		return entries[i], true, nil
	}
	return Entry{}, false, nil
}

// Empty reports whether the tree has zero entries.
func (t *Tree) Empty() (bool, error) {
	entries, err := t.Entries()
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
