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
	"errors"
	"fmt"
)

// MaxSize is the largest size a Header can carry: 48 bits.
const MaxSize = 1<<48 - 1

// maxHeaderLen bounds the encoded form: 1 tag byte + up to 6 size bytes.
const maxHeaderLen = 7

// ErrOversizedHeader is returned when a size does not fit in 48 bits.
var ErrOversizedHeader = errors.New("hash: header size exceeds 48 bits")

// ErrTruncatedHeader is returned when decoding runs out of input before the
// header's self-described length is satisfied.
var ErrTruncatedHeader = errors.New("hash: truncated header")

// ErrUnknownKind is returned when a decoded tag byte names an unrecognized
// object kind.
var ErrUnknownKind = errors.New("hash: unknown object kind")

// Header is the compact (type, size) prefix folded into every object's hash
// input. It self-describes its own encoded length from the first byte, so it
// never needs to be padded to a fixed width.
type Header struct {
	Kind Kind
	Size uint64
}

// sizeLen returns the minimal number of big-endian bytes needed to hold n,
// with n == 0 encoding as zero bytes.
func sizeLen(n uint64) int {
	l := 0
	for n > 0 {
		l++
		n >>= 8
	}
	return l
}

// Encode appends the canonical byte form of h to dst and returns the result.
func (h Header) Encode(dst []byte) ([]byte, error) {
	if h.Size > MaxSize {
		return nil, fmt.Errorf("%w: %d", ErrOversizedHeader, h.Size)
	}
	if !h.Kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, h.Kind)
	}
	n := sizeLen(h.Size)
	dst = append(dst, byte(h.Kind)<<5|byte(n))
	for i := n - 1; i >= 0; i-- {
		dst = append(dst, byte(h.Size>>(8*uint(i))))
	}
	return dst, nil
}

// Len reports the encoded byte length of h without allocating.
func (h Header) Len() int {
	return 1 + sizeLen(h.Size)
}

// DecodeHeader parses a Header from the front of buf, returning the header
// and the number of bytes consumed.
func DecodeHeader(buf []byte) (Header, int, error) {
	if len(buf) == 0 {
		return Header{}, 0, ErrTruncatedHeader
	}
	tag := buf[0]
	kind := Kind(tag >> 5)
	n := int(tag & 0x1f)
	if !kind.Valid() {
		return Header{}, 0, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
	if n > maxHeaderLen-1 {
		return Header{}, 0, fmt.Errorf("%w: size field of %d bytes", ErrOversizedHeader, n)
	}
	if len(buf) < 1+n {
		return Header{}, 0, ErrTruncatedHeader
	}
	var size uint64
	for i := 0; i < n; i++ {
		size = size<<8 | uint64(buf[1+i])
	}
	return Header{Kind: kind, Size: size}, 1 + n, nil
}
