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

// Package node assembles the transport, the protocol stack and the caches
// into one runnable unit with a start/stop lifecycle.
package node

import (
	"os"
	"time"

	"github.com/naoina/toml"
	"github.com/pkg/errors"

	"github.com/BinaryBand/P2P/node/overlay"
	"github.com/BinaryBand/P2P/params"
)

// Config is the user-facing node configuration. Interval fields are
// milliseconds in the TOML form; zero values are patched to the defaults.
type Config struct {
	// Passphrase is the shared admission secret. Production deployments
	// must override the built-in default.
	Passphrase string

	// ListenAddrs are transport multiaddrs to listen on.
	ListenAddrs []string

	// BootstrapNodes are full multiaddrs (…/p2p/<id>) dialed at startup.
	BootstrapNodes []string

	// NodeKeyFile persists the long-term identity key. A fresh ephemeral
	// key is used when empty.
	NodeKeyFile string

	// Verbosity is the log threshold, 0=error .. 4=trace.
	Verbosity int

	// MetricsEnabled turns on the periodic metrics report.
	MetricsEnabled bool

	TimeoutMs              int64
	PulseIntervalMs        int64
	PulseFreshnessMs       int64
	StorageAuditIntervalMs int64
	StorageFreshnessMs     int64

	SwarmSize         int
	MetadataSwarmSize int
	MaxLookupDepth    int
	RedundancyMargin  int

	StorageCacheCap  int
	MetadataCacheCap int
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	return &Config{
		Passphrase:             params.DefaultPassphrase,
		ListenAddrs:            []string{"/ip4/0.0.0.0/tcp/0"},
		Verbosity:              2,
		TimeoutMs:              int64(params.RequestTimeout / time.Millisecond),
		PulseIntervalMs:        int64(params.PulseInterval / time.Millisecond),
		PulseFreshnessMs:       int64(params.PulseFreshness / time.Millisecond),
		StorageAuditIntervalMs: int64(params.StorageAuditInterval / time.Millisecond),
		StorageFreshnessMs:     int64(params.StorageFreshness / time.Millisecond),
		SwarmSize:              params.SwarmSize,
		MetadataSwarmSize:      params.MetadataSwarmSize,
		MaxLookupDepth:         params.MaxLookupDepth,
		RedundancyMargin:       params.RedundancyMargin,
		StorageCacheCap:        params.StorageCacheCap,
		MetadataCacheCap:       params.MetadataCacheCap,
	}
}

// LoadConfig reads a TOML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := toml.Unmarshal(blob, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// overlayConfig converts to the protocol-layer tunables.
func (c *Config) overlayConfig() overlay.Config {
	return overlay.Config{
		Passphrase:           c.Passphrase,
		Timeout:              time.Duration(c.TimeoutMs) * time.Millisecond,
		SwarmSize:            c.SwarmSize,
		MetadataSwarmSize:    c.MetadataSwarmSize,
		MaxLookupDepth:       c.MaxLookupDepth,
		RedundancyMargin:     c.RedundancyMargin,
		PulseInterval:        time.Duration(c.PulseIntervalMs) * time.Millisecond,
		PulseFreshness:       time.Duration(c.PulseFreshnessMs) * time.Millisecond,
		StorageAuditInterval: time.Duration(c.StorageAuditIntervalMs) * time.Millisecond,
		StorageFreshness:     time.Duration(c.StorageFreshnessMs) * time.Millisecond,
	}
}

// sanitized patches nonsensical values back to defaults.
func (c *Config) sanitized() *Config {
	out := *c
	def := DefaultConfig()
	if out.Passphrase == "" {
		out.Passphrase = def.Passphrase
	}
	if len(out.ListenAddrs) == 0 {
		out.ListenAddrs = def.ListenAddrs
	}
	if out.TimeoutMs <= 0 {
		out.TimeoutMs = def.TimeoutMs
	}
	if out.StorageCacheCap <= 0 {
		out.StorageCacheCap = def.StorageCacheCap
	}
	if out.MetadataCacheCap <= 0 {
		out.MetadataCacheCap = def.MetadataCacheCap
	}
	return &out
}
