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

// Package delta implements a small generic byte-delta codec: a rolling-hash
// block matcher against a base buffer, emitting a stream of Copy/Insert
// operations. No TLSH/xdelta/bsdiff dependency ships in the retrieved
// corpus for this, so the codec is hand-rolled (see DESIGN.md); it is used
// only as the pack store's intra-level delta chain encoding, never as part
// of any on-hash-path canonical format.
package delta

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// blockSize is the rolling-hash window used to find candidate matches.
// Smaller windows find more matches at higher CPU cost; 16 mirrors the
// block size common in rsync-style matchers.
const blockSize = 16

const (
	opCopy   byte = 0
	opInsert byte = 1
)

// ErrCorrupt is returned by Apply when a delta stream is malformed or
// references an out-of-range base offset.
var ErrCorrupt = errors.New("delta: corrupt delta stream")

// Encode produces a delta that, applied to base via Apply, reproduces target.
func Encode(base, target []byte) []byte {
	index := buildIndex(base)

	out := make([]byte, 0, len(target)/2+16)
	var literal []byte

	flushLiteral := func() {
		if len(literal) == 0 {
			return
		}
		out = append(out, opInsert)
		out = appendUvarint(out, uint64(len(literal)))
		out = append(out, literal...)
		literal = nil
	}

	i := 0
	for i < len(target) {
		if i+blockSize <= len(target) {
			h := hashBlock(target[i : i+blockSize])
			if pos, ok := index.bestMatch(h, base, target, i); ok {
				matchLen := extendMatch(base, target, pos, i)
				flushLiteral()
				out = append(out, opCopy)
				out = appendUvarint(out, uint64(pos))
				out = appendUvarint(out, uint64(matchLen))
				i += matchLen
				continue
			}
		}
		literal = append(literal, target[i])
		i++
	}
	flushLiteral()
	return out
}

// Apply reconstructs the target buffer by replaying a delta stream
// (produced by Encode) against base.
func Apply(base, delta []byte) ([]byte, error) {
	out := make([]byte, 0, len(base))
	i := 0
	for i < len(delta) {
		op := delta[i]
		i++
		switch op {
		case opCopy:
			offset, n, err := readUvarint(delta, i)
			if err != nil {
				return nil, err
			}
			i = n
			length, n, err := readUvarint(delta, i)
			if err != nil {
				return nil, err
			}
			i = n
			if offset+length > uint64(len(base)) {
				return nil, fmt.Errorf("%w: copy [%d,%d) exceeds base of %d bytes", ErrCorrupt, offset, offset+length, len(base))
			}
			out = append(out, base[offset:offset+length]...)
		case opInsert:
			length, n, err := readUvarint(delta, i)
			if err != nil {
				return nil, err
			}
			i = n
			if i+int(length) > len(delta) {
				return nil, fmt.Errorf("%w: insert of %d bytes truncated", ErrCorrupt, length)
			}
			out = append(out, delta[i:i+int(length)]...)
			i += int(length)
		default:
			return nil, fmt.Errorf("%w: unknown opcode %d", ErrCorrupt, op)
		}
	}
	return out, nil
}

// blockIndex maps a rolling hash of a blockSize-byte window to the (single,
// most recent) base offset it was seen at. Collisions are resolved by
// verifying the actual bytes before accepting a match.
type blockIndex map[uint64]int

func buildIndex(base []byte) blockIndex {
	idx := make(blockIndex, len(base)/blockSize+1)
	if len(base) < blockSize {
		return idx
	}
	for i := 0; i+blockSize <= len(base); i += blockSize {
		idx[hashBlock(base[i:i+blockSize])] = i
	}
	return idx
}

func (idx blockIndex) bestMatch(h uint64, base, target []byte, targetPos int) (int, bool) {
	pos, ok := idx[h]
	if !ok {
		return 0, false
	}
	if pos+blockSize > len(base) || targetPos+blockSize > len(target) {
		return 0, false
	}
	if string(base[pos:pos+blockSize]) != string(target[targetPos:targetPos+blockSize]) {
		return 0, false
	}
	return pos, true
}

// extendMatch grows a confirmed blockSize match in both buffers as far as
// the bytes keep agreeing, forward only (the matcher never looks backward
// since literals already emitted cannot be revised).
func extendMatch(base, target []byte, basePos, targetPos int) int {
	n := 0
	for basePos+n < len(base) && targetPos+n < len(target) && base[basePos+n] == target[targetPos+n] {
		n++
	}
	return n
}

// hashBlock is a simple rolling-friendly polynomial hash; it need not be
// cryptographic, only well distributed over short byte windows.
func hashBlock(b []byte) uint64 {
	var h uint64 = 1469598103934665603 // FNV offset basis
	for _, c := range b {
		h ^= uint64(c)
		h *= 1099511628211 // FNV prime
	}
	return h
}

func appendUvarint(dst []byte, v uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	return append(dst, buf[:n]...)
}

func readUvarint(buf []byte, offset int) (uint64, int, error) {
	v, n := binary.Uvarint(buf[offset:])
	if n <= 0 {
		return 0, 0, fmt.Errorf("%w: bad varint at offset %d", ErrCorrupt, offset)
	}
	return v, offset + n, nil
}
