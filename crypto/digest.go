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

package crypto

import (
	"golang.org/x/crypto/blake2b"
	"lukechampine.com/blake3"

	"github.com/BinaryBand/P2P/common"
)

// Blake2b returns the unkeyed Blake2b-256 digest of data. Content positions,
// peer positions and parcel fingerprints all use this.
func Blake2b(data []byte) common.Hash {
	return common.Hash(blake2b.Sum256(data))
}

// Blake2bKeyed returns the keyed Blake2b-256 digest of data. Request stamps
// use this with the rotating TOTP key.
func Blake2bKeyed(key, data []byte) (common.Hash, error) {
	h, err := blake2b.New256(key)
	if err != nil {
		return common.Hash{}, err
	}
	h.Write(data)
	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out, nil
}

// Blake3 returns the Blake3-256 digest of data. Metadata-owner routing uses
// this, keeping inbox positions disjoint from content positions.
func Blake3(data []byte) common.Hash {
	return common.Hash(blake3.Sum256(data))
}

// PositionOf maps a peer address to its overlay position.
func PositionOf(addr common.Address) common.Hash {
	return Blake2b([]byte(addr))
}
