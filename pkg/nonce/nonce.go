// Package nonce implements replay prevention for the auth server. A checker
// remembers (mac key identifier, timestamp, nonce) tuples for the freshness
// window; a tuple that has been seen within the window is rejected, and a
// given tuple succeeds at most once even under concurrent checks.
//
// Two implementations are provided: an in-memory map with a periodic sweep,
// and a sqlite-backed checker that survives restarts.
package nonce

import (
	"strings"
	"sync"
	"time"
)

// Checker decides whether a request's nonce tuple is fresh.
type Checker interface {
	// CheckAndRemember returns true if the tuple has not been observed within
	// the freshness window and marks it observed. Exactly one of any set of
	// concurrent calls with the same tuple wins.
	CheckAndRemember(macKeyIdentifier, ts, nonce string) (bool, error)

	// Close releases the checker's resources and stops its sweep.
	Close() error
}

// tupleKey joins the tuple fields into a single map/table key.
func tupleKey(macKeyIdentifier, ts, nonce string) string {
	return strings.Join([]string{macKeyIdentifier, ts, nonce}, "\x00")
}

// MemoryChecker is the default in-process checker: a mutex-guarded map from
// tuple to insertion time with time-based eviction.
type MemoryChecker struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	maxAge time.Duration
	done   chan struct{}
	once   sync.Once
}

// NewMemoryChecker creates an in-memory checker whose entries expire after
// maxAge. A background sweep evicts expired entries.
func NewMemoryChecker(maxAge time.Duration) *MemoryChecker {
	c := &MemoryChecker{
		seen:   make(map[string]time.Time),
		maxAge: maxAge,
		done:   make(chan struct{}),
	}
	go c.sweep()
	return c
}

// CheckAndRemember implements Checker.
func (c *MemoryChecker) CheckAndRemember(macKeyIdentifier, ts, nonce string) (bool, error) {
	key := tupleKey(macKeyIdentifier, ts, nonce)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if seenAt, exists := c.seen[key]; exists && now.Sub(seenAt) <= c.maxAge {
		return false, nil
	}
	c.seen[key] = now
	return true, nil
}

// sweep evicts expired entries. The map is never held across I/O.
func (c *MemoryChecker) sweep() {
	ticker := time.NewTicker(c.maxAge)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-c.maxAge)
			c.mu.Lock()
			for key, seenAt := range c.seen {
				if seenAt.Before(cutoff) {
					delete(c.seen, key)
				}
			}
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}

// Close implements Checker.
func (c *MemoryChecker) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
