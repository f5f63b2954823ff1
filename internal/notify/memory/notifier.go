// Package memory contains an in-memory notifier for tests and
// database-only deployments with no indexer.
package memory

import (
	"context"
	"sync"
)

// Notifier records notified counts for inspection.
type Notifier struct {
	mu     sync.RWMutex
	counts []int
	err    error
}

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// FailWith makes subsequent calls return err.
func (n *Notifier) FailWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

// ProductsScraped records the count.
func (n *Notifier) ProductsScraped(_ context.Context, count int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.counts = append(n.counts, count)
	return nil
}

// Counts returns the recorded notifications.
func (n *Notifier) Counts() []int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]int, len(n.counts))
	copy(out, n.counts)
	return out
}
