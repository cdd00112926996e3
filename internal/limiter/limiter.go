// Package limiter tracks consecutive failed logins per identity.
package limiter

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Defaults for the attempt tracker.
const (
	DefaultCapacity = 100
	DefaultTTL      = 24 * time.Hour

	// MaxAttempts is the count an identity may reach before it is reported blocked.
	MaxAttempts = 4
)

// Tracker counts consecutive authentication failures per identity.
type Tracker interface {
	// Increment records a failure and returns the new count.
	Increment(identity string) int
	// Reset forgets the identity.
	Reset(identity string)
	// Count returns the current count, 0 for unseen or expired identities.
	Count(identity string) int
	// IsBlocked reports whether the count exceeds MaxAttempts.
	IsBlocked(identity string) bool
}

// Memory is an in-process Tracker. Entries expire ttl after their last write and
// the least recently written entry is evicted once capacity is reached.
// Each Memory owns a background expiry goroutine that lives as long as the
// process, so build one per server rather than per request.
type Memory struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, int]
}

var _ Tracker = (*Memory)(nil)

// NewMemory constructs a tracker; non-positive arguments fall back to defaults.
func NewMemory(capacity int, ttl time.Duration) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{cache: expirable.NewLRU[string, int](capacity, nil, ttl)}
}

// Increment adds one to the identity's count. The read-modify-write is atomic,
// so among concurrent callers each observes a distinct value.
func (m *Memory) Increment(identity string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Peek does not refresh recency; only writes do.
	n, _ := m.cache.Peek(identity)
	n++
	m.cache.Add(identity, n)
	return n
}

// Reset removes the identity.
func (m *Memory) Reset(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Remove(identity)
}

// Count returns the stored count.
func (m *Memory) Count(identity string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _ := m.cache.Peek(identity)
	return n
}

// IsBlocked reports Count(identity) > MaxAttempts.
func (m *Memory) IsBlocked(identity string) bool {
	return m.Count(identity) > MaxAttempts
}

// Len returns the number of tracked identities, expired ones included until purged.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Len()
}
