// Package idgen provides the instance-scoped monotonically increasing track
// id counter required by §5: ids are never reused within a session and must
// not be shared across tracker instances.
package idgen

// Counter is a simple monotone integer id generator. It is not safe for
// concurrent use, matching the core's single-threaded-per-instance contract.
type Counter struct {
	next int64
}

// Next returns the next unused id, starting at 1.
func (c *Counter) Next() int64 {
	c.next++
	return c.next
}

// Peek returns the id that would be returned by the next call to Next,
// without consuming it. Used by tests asserting monotonicity.
func (c *Counter) Peek() int64 {
	return c.next + 1
}
