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

package overlay

import (
	"time"

	"github.com/BinaryBand/P2P/params"
)

// Config carries the protocol tunables. Zero values fall back to the
// defaults in params.
type Config struct {
	Passphrase string

	Timeout time.Duration

	SwarmSize         int
	MetadataSwarmSize int
	MaxLookupDepth    int
	RedundancyMargin  int

	ShamirShares    int
	ShamirThreshold int

	PulseInterval        time.Duration
	PulseFreshness       time.Duration
	StorageAuditInterval time.Duration
	StorageFreshness     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Passphrase == "" {
		c.Passphrase = params.DefaultPassphrase
	}
	if c.Timeout <= 0 {
		c.Timeout = params.RequestTimeout
	}
	if c.SwarmSize <= 0 {
		c.SwarmSize = params.SwarmSize
	}
	if c.MetadataSwarmSize <= 0 {
		c.MetadataSwarmSize = params.MetadataSwarmSize
	}
	if c.MaxLookupDepth <= 0 {
		c.MaxLookupDepth = params.MaxLookupDepth
	}
	if c.RedundancyMargin <= 0 {
		c.RedundancyMargin = params.RedundancyMargin
	}
	if c.ShamirShares <= 0 {
		c.ShamirShares = params.ShamirShares
	}
	if c.ShamirThreshold <= 0 {
		c.ShamirThreshold = params.ShamirThreshold
	}
	if c.PulseInterval <= 0 {
		c.PulseInterval = params.PulseInterval
	}
	if c.PulseFreshness <= 0 {
		c.PulseFreshness = params.PulseFreshness
	}
	if c.StorageAuditInterval <= 0 {
		c.StorageAuditInterval = params.StorageAuditInterval
	}
	if c.StorageFreshness <= 0 {
		c.StorageFreshness = params.StorageFreshness
	}
	return c
}
