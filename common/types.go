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
	"encoding/base64"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

// Tag prefixes of the self-describing string encodings used on the wire.
const (
	TagBase58 = "base58,"
	TagBase64 = "base64,"
	TagUUID   = "uuid,"
)

// HashLength is the byte length of every digest carried on the wire.
const HashLength = 32

var (
	ErrBadAddress = errors.New("malformed address")
	ErrBadHash    = errors.New("malformed hash")
	ErrBadUUID    = errors.New("malformed uuid")
)

// Address is the textual identity of a peer: the "base58," tag followed by
// the Base58Btc encoding of the peer's identity bytes. Addresses compare by
// exact string equality.
type Address string

// BytesToAddress encodes raw identity bytes into their tagged textual form.
func BytesToAddress(b []byte) Address {
	return Address(TagBase58 + base58.Encode(b))
}

// Bytes decodes the identity bytes out of the tagged form.
func (a Address) Bytes() ([]byte, error) {
	body, ok := strings.CutPrefix(string(a), TagBase58)
	if !ok {
		return nil, errors.Wrap(ErrBadAddress, string(a))
	}
	raw, err := base58.Decode(body)
	if err != nil {
		return nil, errors.Wrap(ErrBadAddress, err.Error())
	}
	return raw, nil
}

// Valid reports whether the address carries the tag and a decodable body.
func (a Address) Valid() bool {
	_, err := a.Bytes()
	return err == nil
}

func (a Address) String() string { return string(a) }

// Hash is a 32-byte digest. Its textual form carries the "base64," tag.
type Hash [HashLength]byte

// BytesToHash truncates or left-pads b into a Hash. Digest producers always
// hand in exactly HashLength bytes; the padding path only serves tests.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// ParseHash decodes the tagged (or historically untagged) Base64 form.
func ParseHash(s string) (Hash, error) {
	body := strings.TrimPrefix(s, TagBase64)
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return Hash{}, errors.Wrap(ErrBadHash, err.Error())
	}
	if len(raw) != HashLength {
		return Hash{}, errors.Wrapf(ErrBadHash, "digest length %d", len(raw))
	}
	var h Hash
	copy(h[:], raw)
	return h, nil
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) String() string {
	return TagBase64 + base64.StdEncoding.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler so hashes embed naturally in
// JSON payloads.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// NewUUID returns a fresh version-4 identifier in its bare textual form.
// Writers emit bare UUIDs; readers accept the legacy "uuid," tag as well.
func NewUUID() string {
	return uuid.Must(uuid.NewV4()).String()
}

// ParseUUID validates s as a UUID, stripping the legacy tag when present,
// and returns the canonical bare form.
func ParseUUID(s string) (string, error) {
	body := strings.TrimPrefix(s, TagUUID)
	id, err := uuid.FromString(body)
	if err != nil {
		return "", errors.Wrap(ErrBadUUID, err.Error())
	}
	return id.String(), nil
}
