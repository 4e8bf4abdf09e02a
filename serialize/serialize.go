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

// Package serialize builds the canonical byte form of Tree, Commit, Renames
// and Index objects. The format is length-prefixed and field-tagged: uvarint
// counts and lengths, fixed-width 20-byte ids, one-byte enum tags. It is
// frozen here and read back symmetrically by package object; golden_test.go
// pins the exact bytes and id of the empty tree and round-trips trees and
// commits through package object.
//
// Rules enforced here, per the data model: tree entries and commit
// attributes are sorted (entries by name, ascending and unique; attributes
// by name); a zero Signature is omitted rather than written as zeroes; an
// absent RenamesId is a single flag byte, not a placeholder id; the
// serializer never embeds its own checksums, since integrity is the storage
// backend's job.
package serialize

import (
	"fmt"
	"sort"

	"github.com/quarryvcs/quarry/hash"
	"github.com/quarryvcs/quarry/internal/wire"
	"github.com/quarryvcs/quarry/object"
)

// validName rejects the empty name, ".", "..", and any name containing '/'.
func validName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("serialize: invalid entry name %q", name)
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			return fmt.Errorf("serialize: entry name %q contains '/'", name)
		}
	}
	return nil
}

// BuildTree encodes entries into a canonical tree payload. entries must
// already be in strictly ascending order by name; this is enforced, not
// performed, since the stage area is responsible for producing sorted
// children.
func BuildTree(entries []object.Entry) ([]byte, error) {
	w := wire.NewWriter(64 + 48*len(entries))
	w.Uvarint(uint64(len(entries)))
	var prev string
	for i, e := range entries {
		if err := validName(e.Name); err != nil {
			return nil, err
		}
		if i > 0 && e.Name <= prev {
			return nil, fmt.Errorf("serialize: tree entries not strictly ascending at %q", e.Name)
		}
		prev = e.Name
		w.String(e.Name)
		w.Byte(byte(e.Type))
		w.Id(e.Id)
		w.Uvarint(e.Size)
	}
	return w.Bytes(), nil
}

func writeSignature(w *wire.Writer, s object.Signature) {
	if s.IsZero() {
		w.Byte(0)
		return
	}
	w.Byte(1)
	w.Id(s.Id)
	w.String(s.Name)
	w.Varint(s.When)
}

// CommitInput is the logical field set from which a canonical commit payload
// is built. Generation is computed by the caller (store/commit building
// layer) from parents and rename sources, per invariant 3.
type CommitInput struct {
	TreeId     hash.Id
	Generation uint64
	Parents    []hash.Id
	Committer  object.Signature
	Author     object.Signature
	Message    string
	Attributes []object.Attribute
	RenamesId  *hash.Id
}

// BuildCommit encodes c into a canonical commit payload. Attributes are
// sorted by name before encoding, per the data model's serializer rules.
func BuildCommit(c CommitInput) ([]byte, error) {
	attrs := append([]object.Attribute(nil), c.Attributes...)
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name < attrs[j].Name })

	w := wire.NewWriter(96 + 20*len(c.Parents) + len(c.Message))
	w.Id(c.TreeId)
	w.Uvarint(c.Generation)
	w.Uvarint(uint64(len(c.Parents)))
	for _, p := range c.Parents {
		w.Id(p)
	}
	writeSignature(w, c.Committer)
	writeSignature(w, c.Author)
	w.String(c.Message)
	w.Uvarint(uint64(len(attrs)))
	for _, a := range attrs {
		w.String(a.Name)
		w.String(a.Value)
	}
	if c.RenamesId != nil {
		w.Byte(1)
		w.Id(*c.RenamesId)
	} else {
		w.Byte(0)
	}
	return w.Bytes(), nil
}

// RenamesInput is the logical field set for a canonical renames payload.
type RenamesInput struct {
	Commits  []hash.Id
	Copies   []object.Copy
	Replaces []object.Replace
}

// BuildRenames encodes r into a canonical renames payload.
func BuildRenames(r RenamesInput) ([]byte, error) {
	w := wire.NewWriter(32 + 20*len(r.Commits))
	w.Uvarint(uint64(len(r.Commits)))
	for _, c := range r.Commits {
		w.Id(c)
	}
	w.Uvarint(uint64(len(r.Copies)))
	for _, c := range r.Copies {
		if c.CommitIdx < 0 || c.CommitIdx >= len(r.Commits) {
			return nil, fmt.Errorf("serialize: copy commit_idx %d out of range [0,%d)", c.CommitIdx, len(r.Commits))
		}
		w.Uvarint(uint64(c.CommitIdx))
		w.String(c.SourcePath)
		w.String(c.DestPath)
	}
	w.Uvarint(uint64(len(r.Replaces)))
	for _, rep := range r.Replaces {
		w.String(rep.SourcePath)
		w.String(rep.DestPath)
	}
	return w.Bytes(), nil
}

// IndexInput is the logical field set for a canonical index payload.
type IndexInput struct {
	OriginalId   hash.Id
	OriginalType hash.Kind
	Parts        []object.Part
}

// BuildIndex encodes ix into a canonical index payload, validating only the
// original type; part sizes are written as given (the storage layer checks
// each referenced blob's size against its declared size when it loads it).
func BuildIndex(ix IndexInput) ([]byte, error) {
	if !ix.OriginalType.Valid() {
		return nil, fmt.Errorf("serialize: %w", hash.ErrUnknownKind)
	}
	w := wire.NewWriter(24 + 28*len(ix.Parts))
	w.Id(ix.OriginalId)
	w.Byte(byte(ix.OriginalType))
	w.Uvarint(uint64(len(ix.Parts)))
	for _, p := range ix.Parts {
		w.Id(p.BlobId)
		w.Uvarint(p.Size)
	}
	return w.Bytes(), nil
}
