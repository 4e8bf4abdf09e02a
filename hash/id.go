// Copyright 2024 The Erigon Authors
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

package hash

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
)

// Size is the byte length of an Id: a SHA-1 digest.
const Size = 20

// ErrInvalidHex is returned when parsing a hex string that is not a valid Id.
var ErrInvalidHex = errors.New("hash: invalid hex id")

// Id is a 160-bit content digest. The zero value is the "null" id.
type Id [Size]byte

// Sum computes the Id of content under the given object header: it hashes
// the encoded header followed by the canonical payload.
func Sum(k Kind, content []byte) (Id, error) {
	hdr, err := Header{Kind: k, Size: uint64(len(content))}.Encode(nil)
	if err != nil {
		return Id{}, err
	}
	h := sha1.New()
	h.Write(hdr)
	h.Write(content)
	var id Id
	h.Sum(id[:0])
	return id, nil
}

// IsZero reports whether id is the null id.
func (id Id) IsZero() bool {
	return id == Id{}
}

// String returns the lowercase hex form of id.
func (id Id) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns a copy of the raw 20 bytes.
func (id Id) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, id[:])
	return b
}

// Compare implements a bytewise total order, usable with slices.SortFunc.
func (id Id) Compare(other Id) int {
	return bytes.Compare(id[:], other[:])
}

// Less reports id < other under bytewise order.
func (id Id) Less(other Id) bool {
	return id.Compare(other) < 0
}

// FromHex parses a 40-character hex string into an Id.
func FromHex(s string) (Id, error) {
	if len(s) != Size*2 {
		return Id{}, fmt.Errorf("%w: length %d", ErrInvalidHex, len(s))
	}
	var id Id
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return Id{}, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return id, nil
}

// FromBytes copies b (which must be exactly Size bytes) into an Id.
func FromBytes(b []byte) (Id, error) {
	if len(b) != Size {
		return Id{}, fmt.Errorf("%w: length %d", ErrInvalidHex, len(b))
	}
	var id Id
	copy(id[:], b)
	return id, nil
}
