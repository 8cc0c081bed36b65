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
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
)

// Cache is the bounded in-memory store shared by the peer table, the
// fragment store, the metadata buckets and the admission limiter windows.
// Keys are the textual identifiers the protocols already carry around
// (addresses, tagged digests, UUIDs).
type Cache interface {
	Add(key string, value interface{}) (evicted bool)
	Get(key string) (value interface{}, ok bool)
	Peek(key string) (value interface{}, ok bool)
	Contains(key string) bool
	Remove(key string)
	Keys() []string
	Len() int
	Purge()
}

// NewCache builds a cache from the given configuration.
func NewCache(config CacheConfiger) (Cache, error) {
	if config == nil {
		return nil, errors.New("cache config is nil")
	}
	return config.newCache()
}

type CacheConfiger interface {
	newCache() (Cache, error)
}

// LRUConfig yields a plain LRU bounded at CacheSize entries.
type LRUConfig struct {
	CacheSize int
}

func (c LRUConfig) newCache() (Cache, error) {
	backing, err := lru.New(c.CacheSize)
	if err != nil {
		return nil, err
	}
	return &lruCache{backing}, nil
}

// ExpirableConfig yields an LRU whose entries also expire TTL after
// insertion. The admission limiter and duplicate windows use this: a counter
// dropped by expiry resets the peer's window.
type ExpirableConfig struct {
	CacheSize int
	TTL       time.Duration
}

func (c ExpirableConfig) newCache() (Cache, error) {
	if c.CacheSize < 1 {
		return nil, errors.Errorf("non-positive cache size %d", c.CacheSize)
	}
	backing := expirable.NewLRU[string, interface{}](c.CacheSize, nil, c.TTL)
	return &expirableCache{backing}, nil
}

type lruCache struct {
	lru *lru.Cache
}

func (c *lruCache) Add(key string, value interface{}) (evicted bool) {
	return c.lru.Add(key, value)
}

func (c *lruCache) Get(key string) (interface{}, bool) {
	return c.lru.Get(key)
}

func (c *lruCache) Peek(key string) (interface{}, bool) {
	return c.lru.Peek(key)
}

func (c *lruCache) Contains(key string) bool {
	return c.lru.Contains(key)
}

func (c *lruCache) Remove(key string) {
	c.lru.Remove(key)
}

func (c *lruCache) Keys() []string {
	raw := c.lru.Keys()
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, k.(string))
	}
	return keys
}

func (c *lruCache) Len() int {
	return c.lru.Len()
}

func (c *lruCache) Purge() {
	c.lru.Purge()
}

type expirableCache struct {
	lru *expirable.LRU[string, interface{}]
}

func (c *expirableCache) Add(key string, value interface{}) (evicted bool) {
	return c.lru.Add(key, value)
}

func (c *expirableCache) Get(key string) (interface{}, bool) {
	return c.lru.Get(key)
}

func (c *expirableCache) Peek(key string) (interface{}, bool) {
	return c.lru.Peek(key)
}

func (c *expirableCache) Contains(key string) bool {
	return c.lru.Contains(key)
}

func (c *expirableCache) Remove(key string) {
	c.lru.Remove(key)
}

func (c *expirableCache) Keys() []string {
	return c.lru.Keys()
}

func (c *expirableCache) Len() int {
	return c.lru.Len()
}

func (c *expirableCache) Purge() {
	c.lru.Purge()
}
