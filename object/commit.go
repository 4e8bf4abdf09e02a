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

// Signature is a commit's author or committer: an identity id, a display
// name, and a UTC-seconds timestamp.
type Signature struct {
	Id   hash.Id
	Name string
	When int64
}

// IsZero reports whether every sub-field is at its default value, which is
// when the serializer omits the signature entirely.
func (s Signature) IsZero() bool {
	return s.Id.IsZero() && s.Name == "" && s.When == 0
}

// Attribute is a generic commit key/value pair (e.g. foreign-VCS provenance).
type Attribute struct {
	Name  string
	Value string
}

// Commit is a fully-decoded commit: tree, parents, generation, signatures,
// message, attributes, and optional renames pointer.
type Commit struct {
	TreeId     hash.Id
	Generation uint64
	Parents    []hash.Id
	Committer  Signature
	Author     Signature
	Message    string
	Attributes []Attribute
	RenamesId  *hash.Id
}

// Timestamp returns the committer's time, falling back to the author's, else
// zero.
func (c Commit) Timestamp() int64 {
	if c.Committer.When != 0 {
		return c.Committer.When
	}
	if c.Author.When != 0 {
		return c.Author.When
	}
	return 0
}

func decodeSignature(r *wire.Reader) (Signature, error) {
	present, err := r.Byte()
	if err != nil {
		return Signature{}, err
	}
	if present == 0 {
		return Signature{}, nil
	}
	id, err := r.Id()
	if err != nil {
		return Signature{}, err
	}
	name, err := r.String()
	if err != nil {
		return Signature{}, err
	}
	when, err := r.Varint()
	if err != nil {
		return Signature{}, err
	}
	return Signature{Id: id, Name: name, When: when}, nil
}

func decodeCommit(buf []byte) (Commit, error) {
	r := wire.NewReader(buf)
	var c Commit
	var err error
	if c.TreeId, err = r.Id(); err != nil {
		return Commit{}, fmt.Errorf("object: commit tree id: %w", err)
	}
	if c.Generation, err = r.Uvarint(); err != nil {
		return Commit{}, fmt.Errorf("object: commit generation: %w", err)
	}
	parentCount, err := r.Uvarint()
	if err != nil {
		return Commit{}, fmt.Errorf("object: commit parent count: %w", err)
	}
	c.Parents = make([]hash.Id, parentCount)
	for i := range c.Parents {
		if c.Parents[i], err = r.Id(); err != nil {
			return Commit{}, fmt.Errorf("object: commit parent %d: %w", i, err)
		}
	}
	if c.Committer, err = decodeSignature(r); err != nil {
		return Commit{}, fmt.Errorf("object: commit committer: %w", err)
	}
	if c.Author, err = decodeSignature(r); err != nil {
		return Commit{}, fmt.Errorf("object: commit author: %w", err)
	}
	if c.Message, err = r.String(); err != nil {
		return Commit{}, fmt.Errorf("object: commit message: %w", err)
	}
	attrCount, err := r.Uvarint()
	if err != nil {
		return Commit{}, fmt.Errorf("object: commit attribute count: %w", err)
	}
	c.Attributes = make([]Attribute, attrCount)
	for i := range c.Attributes {
		if c.Attributes[i].Name, err = r.String(); err != nil {
			return Commit{}, fmt.Errorf("object: commit attribute %d name: %w", i, err)
		}
		if c.Attributes[i].Value, err = r.String(); err != nil {
			return Commit{}, fmt.Errorf("object: commit attribute %d value: %w", i, err)
		}
	}
	hasRenames, err := r.Byte()
	if err != nil {
		return Commit{}, fmt.Errorf("object: commit renames flag: %w", err)
	}
	if hasRenames != 0 {
		id, err := r.Id()
		if err != nil {
			return Commit{}, fmt.Errorf("object: commit renames id: %w", err)
		}
		c.RenamesId = &id
	}
	if !r.Done() {
		return Commit{}, fmt.Errorf("object: commit has trailing bytes")
	}
	return c, nil
}
