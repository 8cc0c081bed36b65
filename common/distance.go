// Copyright 2026 The P2P Authors
// This file is part of the P2P library.
//
// The P2P library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The P2P library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the P2P library. If not, see <http://www.gnu.org/licenses/>.

package common

import (
	"math/bits"
	"sort"
)

// Distance is the bit-resolution XOR metric between two positions: the
// Hamming weight of a XOR b. Zero means identical positions.
func Distance(a, b Hash) int {
	d := 0
	for i := 0; i < HashLength; i++ {
		d += bits.OnesCount8(a[i] ^ b[i])
	}
	return d
}

// Closer reports whether position a is strictly closer to target than b.
func Closer(target, a, b Hash) bool {
	return Distance(target, a) < Distance(target, b)
}

// SortByDistance orders items ascending by the distance of their position to
// target. The sort is stable so equal-distance inputs keep their given order.
func SortByDistance[T any](target Hash, items []T, position func(T) Hash) {
	sort.SliceStable(items, func(i, j int) bool {
		return Distance(target, position(items[i])) < Distance(target, position(items[j]))
	})
}
