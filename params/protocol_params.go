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

package params

import "time"

// ProtocolName is the official short name of the protocol used during capability negotiation.
const ProtocolName = "secret-handshake"

// ProtocolVersion is the wire version. Backward incompatibility is signaled
// only by the minor component.
const ProtocolVersion = "0.5.2"

// ProtocolID is the stream protocol identifier announced to the transport.
const ProtocolID = "/" + ProtocolName + "/proto/" + ProtocolVersion

const (
	// Admission and stamping

	DefaultPassphrase = "secret-handshake" // Shared admission secret; production deployments override.
	TOTPPeriod        = 30 * time.Second   // Step size of the rotating stamp key.
	TOTPSkew          = 1                  // Accepted clock drift, in steps, on the verifying side.

	// BaseProto limits

	RequestTimeout   = 30 * time.Second // Per-request deadline; also the TTL of every bounded window below.
	CallbackTableCap = 32               // Outstanding calls kept per node.
	RateLimit        = CallbackTableCap // Parcels accepted per peer per timeout window.
	LimiterCacheCap  = 2048             // Distinct peers / fingerprints tracked by the limiter caches.
	DuplicateWarning = 8                // Identical parcels tolerated before the excessive-duplicates warning.

	// Peer freshness

	PulseInterval  = 60 * time.Second  // Base period of the pulse audit timer.
	PulseFreshness = 120 * time.Second // Age after which a peer entry is stale and must re-pulse.
	PeerTableCap   = 1024              // Admitted peers kept before LRU eviction.

	// Swarm replication

	SwarmSize            = 3                 // Replication degree of content fragments.
	MaxLookupDepth       = 5                 // Iterative nearest-peers rounds.
	StorageAuditInterval = 60 * time.Second  // Base period of the storage audit timer.
	StorageFreshness     = 180 * time.Second // Age after which a stored item is re-audited unconditionally.
	RedundancyMargin     = 10                // Fresh items nearest to self re-audited per cycle.
	StorageCacheCap      = 4096              // Fragments held before LRU eviction.

	// Messaging

	ShamirShares      = 5    // Shares per message envelope.
	ShamirThreshold   = 3    // Shares required to reconstruct.
	MetadataSwarmSize = 5    // Replication degree of metadata buckets.
	MetadataCacheCap  = 2048 // Bucket owners tracked before LRU eviction.
)

// Timer jitter bounds. Both audit loops add a random delay below these caps
// so that nodes started together do not fire in lockstep.
const (
	PulseJitterMax        = 10 * time.Second
	StorageAuditJitterMax = 10 * time.Second
)
