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

import "github.com/quarryvcs/quarry/hash"

// EntryType is the filesystem-visible type of a tree entry.
type EntryType uint8

const (
	EntryFile EntryType = iota
	EntryDirectory
	EntryExecutable
	EntrySymlink
)

func (t EntryType) String() string {
	switch t {
	case EntryFile:
		return "file"
	case EntryDirectory:
		return "directory"
	case EntryExecutable:
		return "executable"
	case EntrySymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// IsRegular reports whether t is one of the three file-ish kinds that carry
// content (regular, executable or symlink), as opposed to a subdirectory.
func (t EntryType) IsRegular() bool {
	return t == EntryFile || t == EntryExecutable || t == EntrySymlink
}

// Entry is a single named child of a Tree, or of a stage overlay directory.
type Entry struct {
	Name string
	Id   hash.Id
	Type EntryType
	Size uint64
}

// PathEntry is the value type shared by the stage area and trees: an Entry
// plus a record of whether it is stored directly or via an Index pointer.
type PathEntry struct {
	Entry
	Indirect bool
}
