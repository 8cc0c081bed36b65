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
	"sync"
	"time"

	"github.com/BinaryBand/P2P/common"
)

// PeerRecord is one admitted peer. LastSeen advances on every successful
// handshake, pulse or valid inbound parcel.
type PeerRecord struct {
	Address  common.Address
	LastSeen time.Time
}

// peerSet is the table of admitted peers, LRU-bounded. Entries leave on
// disconnect, failed pulse or capacity eviction.
type peerSet struct {
	mu    sync.Mutex
	cache common.Cache
	now   func() time.Time
}

func newPeerSet(cap int) (*peerSet, error) {
	cache, err := common.NewCache(common.LRUConfig{CacheSize: cap})
	if err != nil {
		return nil, err
	}
	return &peerSet{cache: cache, now: time.Now}, nil
}

// Register inserts or refreshes addr with LastSeen = now.
func (ps *peerSet) Register(addr common.Address) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.cache.Add(string(addr), &PeerRecord{Address: addr, LastSeen: ps.now()})
}

// Touch refreshes LastSeen if addr is present.
func (ps *peerSet) Touch(addr common.Address) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	v, ok := ps.cache.Peek(string(addr))
	if !ok {
		return false
	}
	v.(*PeerRecord).LastSeen = ps.now()
	return true
}

// Unregister removes addr.
func (ps *peerSet) Unregister(addr common.Address) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.cache.Remove(string(addr))
}

// Get returns a copy of addr's record.
func (ps *peerSet) Get(addr common.Address) (PeerRecord, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	v, ok := ps.cache.Peek(string(addr))
	if !ok {
		return PeerRecord{}, false
	}
	return *v.(*PeerRecord), true
}

// Fresh reports whether addr is present and within the freshness threshold.
func (ps *peerSet) Fresh(addr common.Address, freshness time.Duration) bool {
	rec, ok := ps.Get(addr)
	return ok && ps.now().Sub(rec.LastSeen) < freshness
}

// Addresses snapshots the admitted peer addresses.
func (ps *peerSet) Addresses() []common.Address {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	keys := ps.cache.Keys()
	addrs := make([]common.Address, 0, len(keys))
	for _, k := range keys {
		addrs = append(addrs, common.Address(k))
	}
	return addrs
}

// Stale returns the addresses whose records are older than freshness.
func (ps *peerSet) Stale(freshness time.Duration) []common.Address {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	cutoff := ps.now().Add(-freshness)
	var stale []common.Address
	for _, k := range ps.cache.Keys() {
		if v, ok := ps.cache.Peek(k); ok && v.(*PeerRecord).LastSeen.Before(cutoff) {
			stale = append(stale, common.Address(k))
		}
	}
	return stale
}

func (ps *peerSet) Len() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.cache.Len()
}

func (ps *peerSet) Purge() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.cache.Purge()
}
