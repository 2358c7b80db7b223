// Package cache keeps parsed ordinance sections so repeat lookups skip
// the upstream fetch. An in-memory TTL tier always runs; an S3 tier can
// back it for persistence across restarts.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/civiclab/ordinance-api/internal/ordinance"
)

// Key derives the stable cache key for a document URL.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

type memEntry struct {
	section  *ordinance.Section
	storedAt time.Time
}

type Memory struct {
	mu         sync.Mutex
	entries    map[string]memEntry
	ttl        time.Duration
	maxEntries int
	onSize     func(int)
}

type MemoryOption func(*Memory)

func WithTTL(d time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = d }
}

func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) { m.maxEntries = n }
}

// WithOnSize is called with the entry count after every mutation.
func WithOnSize(fn func(int)) MemoryOption {
	return func(m *Memory) { m.onSize = fn }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries:    make(map[string]memEntry),
		ttl:        15 * time.Minute,
		maxEntries: 4096,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Get returns the cached section for url if present and fresh.
func (m *Memory) Get(url string, now time.Time) (*ordinance.Section, bool) {
	key := Key(url)

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if now.Sub(e.storedAt) > m.ttl {
		delete(m.entries, key)
		m.notifySizeLocked()
		return nil, false
	}
	return e.section, true
}

// Put stores a section. At capacity the oldest entry is evicted first.
func (m *Memory) Put(url string, sec *ordinance.Section, now time.Time) {
	key := Key(url)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		m.evictOldestLocked()
	}
	m.entries[key] = memEntry{section: sec, storedAt: now}
	m.notifySizeLocked()
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for k, e := range m.entries {
		if oldestKey == "" || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.storedAt
		}
	}
	if oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}

func (m *Memory) notifySizeLocked() {
	if m.onSize != nil {
		m.onSize(len(m.entries))
	}
}

// Sweep drops expired entries every ttl/2 until ctx is cancelled.
func (m *Memory) Sweep(ctx context.Context) {
	interval := m.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			m.mu.Lock()
			for k, e := range m.entries {
				if now.Sub(e.storedAt) > m.ttl {
					delete(m.entries, k)
				}
			}
			m.notifySizeLocked()
			m.mu.Unlock()
		}
	}
}
