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

// Package storage holds the node's in-memory, LRU-bounded caches of content
// fragments and metadata buckets. Nothing here touches disk.
package storage

import (
	"time"

	"github.com/BinaryBand/P2P/common"
	"github.com/BinaryBand/P2P/crypto"
	"github.com/BinaryBand/P2P/log"
)

var logger = log.NewModuleLogger(log.Storage)

// Item is one stored content fragment. The key of an item is the Blake2b
// digest of its data; Get re-checks that relation on every read.
type Item struct {
	Hash      common.Hash
	Data      string
	CreatedAt time.Time
}

// Store is the content-addressed fragment cache.
type Store struct {
	cache common.Cache
	now   func() time.Time
}

// NewStore builds a fragment store bounded at cap items.
func NewStore(cap int) (*Store, error) {
	cache, err := common.NewCache(common.LRUConfig{CacheSize: cap})
	if err != nil {
		return nil, err
	}
	return &Store{cache: cache, now: time.Now}, nil
}

// Put inserts data under its own digest and returns that digest. Re-storing
// identical data refreshes the item's age.
func (s *Store) Put(data string) common.Hash {
	h := crypto.Blake2b([]byte(data))
	s.cache.Add(h.String(), &Item{Hash: h, Data: data, CreatedAt: s.now()})
	return h
}

// Get returns the data stored under h. An item whose data no longer matches
// its digest is dropped instead of returned.
func (s *Store) Get(h common.Hash) (string, bool) {
	v, ok := s.cache.Get(h.String())
	if !ok {
		return "", false
	}
	item := v.(*Item)
	if crypto.Blake2b([]byte(item.Data)) != h {
		logger.Warn("dropping corrupt storage item", "hash", h.String())
		s.cache.Remove(h.String())
		return "", false
	}
	return item.Data, true
}

// Has reports whether h is currently held.
func (s *Store) Has(h common.Hash) bool {
	return s.cache.Contains(h.String())
}

// Items snapshots the currently held items, least recently used first.
func (s *Store) Items() []*Item {
	keys := s.cache.Keys()
	items := make([]*Item, 0, len(keys))
	for _, k := range keys {
		if v, ok := s.cache.Peek(k); ok {
			items = append(items, v.(*Item))
		}
	}
	return items
}

// Len returns the number of held items.
func (s *Store) Len() int {
	return s.cache.Len()
}

// Purge drops every held item.
func (s *Store) Purge() {
	s.cache.Purge()
}
