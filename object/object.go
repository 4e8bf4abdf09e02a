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

// Package object implements the immutable, content-addressed object model:
// read-only typed views (Blob/Tree/Commit/Renames/Index) over a shared byte
// buffer. Views are cheap to copy and decode their fields lazily; building
// new canonical byte forms is the serialize package's job.
package object

import (
	"fmt"

	"github.com/quarryvcs/quarry/hash"
)

// Object is an opaque, type-tagged handle over a canonical payload buffer.
// It is the result of Load and the argument to the As* downcasts.
type Object struct {
	kind hash.Kind
	buf  []byte
}

// Load wraps payload under kind without parsing it; only a kind check is
// performed here, matching the "decode lazily" contract.
func Load(kind hash.Kind, payload []byte) (Object, error) {
	if !kind.Valid() {
		return Object{}, fmt.Errorf("object: %w: %d", hash.ErrUnknownKind, kind)
	}
	return Object{kind: kind, buf: payload}, nil
}

func (o Object) Kind() hash.Kind { return o.kind }

// Bytes returns the canonical payload this object was loaded from.
func (o Object) Bytes() []byte { return o.buf }

// Id recomputes this object's content id. Cheap relative to decoding but not
// free; callers that already know the id (e.g. from a backend lookup) should
// prefer that value.
func (o Object) Id() (hash.Id, error) {
	return hash.Sum(o.kind, o.buf)
}

var errKindMismatch = fmt.Errorf("object: kind mismatch")

// AsBlob downcasts o to a Blob, failing if o is not a blob.
func (o Object) AsBlob() (Blob, error) {
	if o.kind != hash.KindBlob {
		return Blob{}, fmt.Errorf("%w: want blob, have %s", errKindMismatch, o.kind)
	}
	return Blob{data: o.buf}, nil
}

// AsTree downcasts o to a Tree, failing if o is not a tree. Tree is returned
// by pointer because it caches its parsed entries behind a sync.Once.
func (o Object) AsTree() (*Tree, error) {
	if o.kind != hash.KindTree {
		return nil, fmt.Errorf("%w: want tree, have %s", errKindMismatch, o.kind)
	}
	return &Tree{buf: o.buf}, nil
}

// AsCommit downcasts o to a Commit, failing if o is not a commit.
func (o Object) AsCommit() (Commit, error) {
	if o.kind != hash.KindCommit {
		return Commit{}, fmt.Errorf("%w: want commit, have %s", errKindMismatch, o.kind)
	}
	return decodeCommit(o.buf)
}

// AsRenames downcasts o to a Renames, failing if o is not a renames object.
func (o Object) AsRenames() (Renames, error) {
	if o.kind != hash.KindRenames {
		return Renames{}, fmt.Errorf("%w: want renames, have %s", errKindMismatch, o.kind)
	}
	return decodeRenames(o.buf)
}

// AsIndex downcasts o to an Index, failing if o is not an index.
func (o Object) AsIndex() (Index, error) {
	if o.kind != hash.KindIndex {
		return Index{}, fmt.Errorf("%w: want index, have %s", errKindMismatch, o.kind)
	}
	return decodeIndex(o.buf)
}

// Blob is an opaque byte payload: file content or a symlink target.
type Blob struct {
	data []byte
}

func (b Blob) Bytes() []byte { return b.data }
func (b Blob) Size() int64   { return int64(len(b.data)) }
