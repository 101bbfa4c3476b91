package transform

import "sync/atomic"

// DefaultDocNumberBase is the value the first assigned doc number follows.
const DefaultDocNumberBase = 100000

// DocCounter hands out monotonically increasing document numbers for one run.
// It is safe for concurrent use.
type DocCounter struct {
	base int64
	n    atomic.Int64
}

// NewDocCounter creates a counter whose first value is base+1.
func NewDocCounter(base int64) *DocCounter {
	return &DocCounter{base: base}
}

// Next returns the next document number.
func (c *DocCounter) Next() int64 {
	return c.base + c.n.Add(1)
}

// Peek returns the last value handed out, or base if none has been.
func (c *DocCounter) Peek() int64 {
	return c.base + c.n.Load()
}

// Reset rewinds the counter to its base.
func (c *DocCounter) Reset() {
	c.n.Store(0)
}
