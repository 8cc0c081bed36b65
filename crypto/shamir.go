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
	"github.com/hashicorp/vault/shamir"
	"github.com/pkg/errors"
)

// SplitSecret splits secret into shares byte-shares of which threshold
// suffice to reconstruct it.
func SplitSecret(secret []byte, shares, threshold int) ([][]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("cannot split an empty secret")
	}
	out, err := shamir.Split(secret, shares, threshold)
	if err != nil {
		return nil, errors.Wrap(err, "shamir split")
	}
	return out, nil
}

// CombineShares reconstructs the secret from any threshold-sized subset of
// its shares.
func CombineShares(parts [][]byte) ([]byte, error) {
	out, err := shamir.Combine(parts)
	if err != nil {
		return nil, errors.Wrap(err, "shamir combine")
	}
	return out, nil
}
