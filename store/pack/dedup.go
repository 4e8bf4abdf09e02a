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

package pack

import "github.com/google/btree"

// idTreeItem is the btree.Item wrapping one ObjectRef, ordered by id so
// ascending traversal yields the sorted, deduplicated collection the pack
// writer streams from.
type idTreeItem struct {
	ref ObjectRef
}

func (a idTreeItem) Less(than btree.Item) bool {
	b := than.(idTreeItem)
	return a.ref.Id.Less(b.ref.Id)
}

// idTree collects (id, ref) pairs in id order, with later insertions of the
// same id overwriting earlier ones — the "later portions shadow earlier
// ones" rule for collecting memtable/pack inputs before a pack rewrite.
type idTree struct {
	t *btree.BTree
}

func newIDTree() *idTree {
	return &idTree{t: btree.New(32)}
}

func (it *idTree) set(ref ObjectRef) {
	it.t.ReplaceOrInsert(idTreeItem{ref: ref})
}

func (it *idTree) ordered() []ObjectRef {
	out := make([]ObjectRef, 0, it.t.Len())
	it.t.Ascend(func(item btree.Item) bool {
		out = append(out, item.(idTreeItem).ref)
		return true
	})
	return out
}
