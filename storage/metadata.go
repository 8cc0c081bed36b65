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

package storage

import (
	mapset "github.com/deckarep/golang-set"

	"github.com/BinaryBand/P2P/common"
)

// Metadata maps bucket owners to the set of content hashes announced for
// them. Buckets grow by union and the owner population is LRU-bounded.
type Metadata struct {
	cache common.Cache
}

// NewMetadata builds a metadata cache bounded at cap owners.
func NewMetadata(cap int) (*Metadata, error) {
	cache, err := common.NewCache(common.LRUConfig{CacheSize: cap})
	if err != nil {
		return nil, err
	}
	return &Metadata{cache: cache}, nil
}

// Union merges hashes into owner's bucket.
func (m *Metadata) Union(owner common.Address, hashes []string) {
	var set mapset.Set
	if v, ok := m.cache.Get(string(owner)); ok {
		set = v.(mapset.Set)
	} else {
		set = mapset.NewSet()
	}
	for _, h := range hashes {
		set.Add(h)
	}
	m.cache.Add(string(owner), set)
}

// Get returns the hashes currently held for owner.
func (m *Metadata) Get(owner common.Address) []string {
	v, ok := m.cache.Get(string(owner))
	if !ok {
		return nil
	}
	raw := v.(mapset.Set).ToSlice()
	hashes := make([]string, 0, len(raw))
	for _, e := range raw {
		hashes = append(hashes, e.(string))
	}
	return hashes
}

// Owners returns the number of tracked buckets.
func (m *Metadata) Owners() int {
	return m.cache.Len()
}

// Purge drops every bucket.
func (m *Metadata) Purge() {
	m.cache.Purge()
}
