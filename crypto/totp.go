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
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/BinaryBand/P2P/common"
	"github.com/BinaryBand/P2P/log"
	"github.com/BinaryBand/P2P/params"
)

var logger = log.NewModuleLogger(log.Crypto)

// InitiationToken derives the shared admission token from the passphrase.
func InitiationToken(passphrase string) common.Hash {
	return Blake2b([]byte(passphrase))
}

// Stamper produces and verifies the per-request admission stamps.
//
// TOTP parameters: 30 second step, HMAC-SHA512, 8 digits. The verifying side
// accepts one step of clock drift in either direction. The stamp key of a
// window is Blake2b(token || code) where code is the window's TOTP code over
// the initiation token.
type Stamper struct {
	token  common.Hash
	secret string // base32 form of the token, as the TOTP library expects
	period time.Duration
	now    func() time.Time
}

// NewStamper builds a Stamper over the given passphrase.
func NewStamper(passphrase string) *Stamper {
	token := InitiationToken(passphrase)
	return &Stamper{
		token:  token,
		secret: base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(token.Bytes()),
		period: params.TOTPPeriod,
		now:    time.Now,
	}
}

// keyAt derives the stamp key of the window containing t.
func (s *Stamper) keyAt(t time.Time) ([]byte, error) {
	code, err := totp.GenerateCodeCustom(s.secret, t, totp.ValidateOpts{
		Period:    uint(s.period / time.Second),
		Digits:    otp.DigitsEight,
		Algorithm: otp.AlgorithmSHA512,
	})
	if err != nil {
		return nil, err
	}
	key := Blake2b(append(s.token.Bytes(), []byte(code)...))
	return key.Bytes(), nil
}

// Stamp computes the Base64 stamp of a request body serialized with its
// stamp field unset.
func (s *Stamper) Stamp(body []byte) (string, error) {
	key, err := s.keyAt(s.now())
	if err != nil {
		return "", err
	}
	mac, err := Blake2bKeyed(key, body)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(mac.Bytes()), nil
}

// Verify re-computes the stamp over body for the current window and its
// immediate neighbors and compares in constant time.
func (s *Stamper) Verify(body []byte, stamp string) bool {
	claimed, err := base64.StdEncoding.DecodeString(stamp)
	if err != nil {
		return false
	}
	now := s.now()
	for skew := -params.TOTPSkew; skew <= params.TOTPSkew; skew++ {
		key, err := s.keyAt(now.Add(time.Duration(skew) * s.period))
		if err != nil {
			logger.Error("stamp key derivation failed", "err", err)
			return false
		}
		mac, err := Blake2bKeyed(key, body)
		if err != nil {
			logger.Error("stamp recomputation failed", "err", err)
			return false
		}
		if subtle.ConstantTimeCompare(mac.Bytes(), claimed) == 1 {
			return true
		}
	}
	return false
}
