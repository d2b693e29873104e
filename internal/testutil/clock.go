package testutil

import (
	"sync"
	"time"
)

// SnapshotEpoch is the first timestamp a SnapshotClock hands out.
var SnapshotEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// SnapshotClock hands out source snapshot timestamps one hour apart, so
// every run of a test gets a distinct, reproducible timestamp.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SnapshotClock struct {
	mu sync.Mutex
	n  int
}

// NewSnapshotClock creates a clock whose first Next is SnapshotEpoch.
func NewSnapshotClock() *SnapshotClock {
	return &SnapshotClock{}
}

// Next returns the next snapshot timestamp.
func (c *SnapshotClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := At(c.n)
	c.n++
	return ts
}

// Issued returns how many timestamps were handed out.
func (c *SnapshotClock) Issued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Reset makes the next call to Next return SnapshotEpoch again.
func (c *SnapshotClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}

// At is the n-th snapshot timestamp (zero-based).
func At(n int) time.Time {
	return SnapshotEpoch.Add(time.Duration(n) * time.Hour)
}
