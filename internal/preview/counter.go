package preview

import "sync/atomic"

// Counter hands out monotonically increasing run identifiers. A run whose
// identifier is no longer the latest for its surface is stale.
type Counter interface {
	Next() uint64
}

// AtomicCounter is the default Counter.
type AtomicCounter struct {
	n atomic.Uint64
}

// Next returns the next run identifier, starting at 1.
func (c *AtomicCounter) Next() uint64 {
	return c.n.Add(1)
}
