// Copyright 2017 The go-ethereum Authors
// (original work)
// Copyright 2026 The Quarry Authors
// (modifications)
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

// Package intmath holds small overflow-checked integer helpers shared by
// the header, pack and chunking code, where sizes and offsets are summed
// from untrusted on-disk data.
package intmath

import "math/bits"

const (
	MaxUint48 = 1<<48 - 1
)

// SafeMul returns x*y and reports whether it overflowed.
func SafeMul(x, y uint64) (uint64, bool) {
	hi, lo := bits.Mul64(x, y)
	return lo, hi != 0
}

// SafeAdd returns x+y and reports whether it overflowed.
func SafeAdd(x, y uint64) (uint64, bool) {
	sum, carryOut := bits.Add64(x, y, 0)
	return sum, carryOut != 0
}

// CeilDiv returns ceil(x/y), or 0 if y is 0.
func CeilDiv(x, y int) int {
	if y == 0 {
		return 0
	}
	return (x + y - 1) / y
}

// CeilDivU64 is CeilDiv for uint64 operands, used for chunk-count math.
func CeilDivU64(x, y uint64) uint64 {
	if y == 0 {
		return 0
	}
	return (x + y - 1) / y
}

// Max returns the larger of x and y. Used for generation computation
// (generation = 1 + max over parents and rename sources).
func Max(x, y uint64) uint64 {
	if x > y {
		return x
	}
	return y
}
