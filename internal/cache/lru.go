// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

// Package cache provides the bounded in-memory cache the collector keeps
// view summaries in.
package cache

import (
	"sync"
	"time"

	"github.com/tomtom215/viewbeacon/internal/clock"
)

type entry[K comparable, V any] struct {
	key       K
	value     V
	prev      *entry[K, V]
	next      *entry[K, V]
	expiresAt time.Time
}

// LRU is a thread-safe least recently used cache with a sliding TTL.
//
//   - O(1) Get, Update and Remove
//   - O(1) eviction of the least recently used entry at capacity
//   - lazy expiration, plus CleanupExpired for periodic sweeps
//
// A doubly-linked list keeps recency order; a map gives lookups.
type LRU[K comparable, V any] struct {
	mu sync.Mutex

	capacity int
	ttl      time.Duration
	clock    clock.Clock

	items map[K]*entry[K, V]

	// head.next is the most recently used, tail.prev the least.
	head *entry[K, V]
	tail *entry[K, V]

	hits      int64
	misses    int64
	evictions int64
}

// NewLRU creates a cache holding at most capacity entries, each expiring
// ttl after it was last written. A nil clock uses wall time.
func NewLRU[K comparable, V any](capacity int, ttl time.Duration, c clock.Clock) *LRU[K, V] {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if c == nil {
		c = clock.New()
	}

	l := &LRU[K, V]{
		capacity: capacity,
		ttl:      ttl,
		clock:    c,
		items:    make(map[K]*entry[K, V], capacity),
		head:     &entry[K, V]{},
		tail:     &entry[K, V]{},
	}
	l.head.next = l.tail
	l.tail.prev = l.head
	return l
}

// Get returns the value for key if present and not expired, marking it
// most recently used.
func (l *LRU[K, V]) Get(key K) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var zero V
	e, ok := l.items[key]
	if !ok {
		l.misses++
		return zero, false
	}
	if l.clock.Now().After(e.expiresAt) {
		l.removeEntry(e)
		l.misses++
		return zero, false
	}
	l.moveToFront(e)
	l.hits++
	return e.value, true
}

// Add stores value under key, replacing any previous value.
func (l *LRU[K, V]) Add(key K, value V) {
	l.Update(key, func(V, bool) V { return value })
}

// Update replaces the value for key with fn(current, found) atomically.
// Expired entries are passed to fn as not found.
func (l *LRU[K, V]) Update(key K, fn func(current V, found bool) V) V {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if e, ok := l.items[key]; ok {
		if now.After(e.expiresAt) {
			var zero V
			e.value = fn(zero, false)
		} else {
			e.value = fn(e.value, true)
		}
		e.expiresAt = now.Add(l.ttl)
		l.moveToFront(e)
		return e.value
	}

	var zero V
	e := &entry[K, V]{key: key, value: fn(zero, false), expiresAt: now.Add(l.ttl)}
	l.addToFront(e)
	l.items[key] = e

	for len(l.items) > l.capacity {
		l.evictOldest()
	}
	return e.value
}

// Remove deletes key and reports whether it was present.
func (l *LRU[K, V]) Remove(key K) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.items[key]; ok {
		l.removeEntry(e)
		return true
	}
	return false
}

// Len returns the number of entries, including expired ones not yet swept.
func (l *LRU[K, V]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// CleanupExpired removes expired entries and returns how many it removed.
func (l *LRU[K, V]) CleanupExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	removed := 0
	// Oldest first.
	for e := l.tail.prev; e != l.head; {
		prev := e.prev
		if now.After(e.expiresAt) {
			l.removeEntry(e)
			removed++
		}
		e = prev
	}
	return removed
}

// Stats returns hit, miss and eviction counters and the current size.
func (l *LRU[K, V]) Stats() (hits, misses, evictions int64, size int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hits, l.misses, l.evictions, len(l.items)
}

// Internal methods (must be called with lock held)

func (l *LRU[K, V]) addToFront(e *entry[K, V]) {
	e.prev = l.head
	e.next = l.head.next
	l.head.next.prev = e
	l.head.next = e
}

func (l *LRU[K, V]) moveToFront(e *entry[K, V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	l.addToFront(e)
}

func (l *LRU[K, V]) removeEntry(e *entry[K, V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(l.items, e.key)
}

func (l *LRU[K, V]) evictOldest() {
	oldest := l.tail.prev
	if oldest == l.head {
		return
	}
	l.removeEntry(oldest)
	l.evictions++
}
