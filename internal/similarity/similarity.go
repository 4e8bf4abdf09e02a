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

// Package similarity computes a fixed-width locality-sensitive digest used
// to pick delta-base candidates during pack writing. No TLSH dependency
// ships in the retrieved corpus, so this stands in with an n-gram minhash:
// objects with similar shingled content land close in Distance, the same
// property a TLSH digest provides (see DESIGN.md).
package similarity

import "math/bits"

// numHashes is the digest width; more hashes trade CPU for finer-grained
// distance resolution.
const numHashes = 8

// shingleLen is the n-gram size swept over the content.
const shingleLen = 4

// Digest is a fixed-width locality-sensitive fingerprint of a byte buffer.
type Digest [numHashes]uint64

// Compute builds content's digest: for each of numHashes independent hash
// seeds, the minimum hash over every shingleLen-byte shingle is kept. Two
// buffers sharing many shingles tend to agree on several of these minima.
func Compute(content []byte) Digest {
	var d Digest
	for i := range d {
		d[i] = ^uint64(0)
	}
	if len(content) < shingleLen {
		h := fnv1a(content, 0)
		for i := range d {
			d[i] = mix(h, uint64(i))
		}
		return d
	}
	for start := 0; start+shingleLen <= len(content); start++ {
		base := fnv1a(content[start:start+shingleLen], 0)
		for i := range d {
			h := mix(base, uint64(i))
			if h < d[i] {
				d[i] = h
			}
		}
	}
	return d
}

// Distance is the count of minhash slots that disagree between a and b: 0
// means identical shingle sets were likely seen, numHashes means no
// agreement at all. Lower is more similar.
func Distance(a, b Digest) int {
	n := 0
	for i := range a {
		if a[i] != b[i] {
			n++
		}
	}
	return n
}

// HammingBits sums the bitwise Hamming distance across all slots, a finer
// tie-breaker than the coarse slot-disagreement count.
func HammingBits(a, b Digest) int {
	n := 0
	for i := range a {
		n += bits.OnesCount64(a[i] ^ b[i])
	}
	return n
}

func fnv1a(b []byte, seed uint64) uint64 {
	h := 1469598103934665603 ^ seed
	for _, c := range b {
		h ^= uint64(c)
		h *= 1099511628211
	}
	return h
}

// mix derives an independent hash function per digest slot from a single
// shingle hash, avoiding numHashes separate passes over the content.
func mix(h, salt uint64) uint64 {
	h ^= salt * 0x9e3779b97f4a7c15
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}
