// Copyright 2025 Philipp Hossner
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package authz gates event delivery on the subscriber's permission to
// watch the resource, caching positive grants so the cluster is not
// asked once per event per subscriber.
//
// Only grants are cached, never denials: a permission upgrade takes
// effect on the next event, while a revocation is detected at worst one
// TTL later. That staleness window is a deliberate tradeoff.
package authz

import (
	"sync"
	"time"
)

// Cache stores positive watch-permission grants keyed by the full check
// input. Implementations must be safe for concurrent use. Entries are
// replace-on-write; a stored grant is never mutated in place.
type Cache interface {
	// Get returns the time the grant for key was stored, if present.
	Get(key string) (grantedAt time.Time, ok bool)

	// Put stores a grant for key, replacing any previous entry.
	Put(key string, grantedAt time.Time)

	// Delete removes the entry for key, if present.
	Delete(key string)

	// Sweep evicts every entry stored before cutoff and returns the
	// number of evictions.
	Sweep(cutoff time.Time) int
}

// TTLCache is the in-process Cache used by a single gateway replica.
// Replicas do not share authorization state; each keeps its own map.
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewTTLCache creates an empty TTLCache.
func NewTTLCache() *TTLCache {
	return &TTLCache{entries: make(map[string]time.Time)}
}

// Get returns the stored grant time for key.
func (c *TTLCache) Get(key string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	grantedAt, ok := c.entries[key]
	return grantedAt, ok
}

// Put stores a grant for key.
func (c *TTLCache) Put(key string, grantedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = grantedAt
}

// Delete removes the entry for key.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Sweep evicts entries stored before cutoff.
func (c *TTLCache) Sweep(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, grantedAt := range c.entries {
		if grantedAt.Before(cutoff) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of stored grants.
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
