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

package p2p

import (
	"crypto/rand"
	"os"

	lcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/pkg/errors"
)

// GenerateKey creates a fresh Ed25519 identity key.
func GenerateKey() (lcrypto.PrivKey, error) {
	key, _, err := lcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generate identity key")
	}
	return key, nil
}

// LoadOrGenerateKey returns the identity key stored at path, creating and
// persisting a fresh one when the file does not exist. The key is the one
// durable artifact of a node: everything else is in-memory.
func LoadOrGenerateKey(path string) (lcrypto.PrivKey, error) {
	blob, err := os.ReadFile(path)
	switch {
	case err == nil:
		key, err := lcrypto.UnmarshalPrivateKey(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "unmarshal identity key %s", path)
		}
		return key, nil
	case os.IsNotExist(err):
		key, err := GenerateKey()
		if err != nil {
			return nil, err
		}
		raw, err := lcrypto.MarshalPrivateKey(key)
		if err != nil {
			return nil, errors.Wrap(err, "marshal identity key")
		}
		if err := os.WriteFile(path, raw, 0o600); err != nil {
			return nil, errors.Wrapf(err, "persist identity key %s", path)
		}
		logger.Info("generated new identity key", "path", path)
		return key, nil
	default:
		return nil, errors.Wrapf(err, "read identity key %s", path)
	}
}
