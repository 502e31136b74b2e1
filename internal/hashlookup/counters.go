package hashlookup

import "sync/atomic"

// RunCounters counts digests that resolved to a known record during a job.
type RunCounters struct {
	found atomic.Int64
}

// Inc records one classified digest and returns the new total.
func (c *RunCounters) Inc() int64 {
	return c.found.Add(1)
}

// Load returns the number of classified digests.
func (c *RunCounters) Load() int64 {
	return c.found.Load()
}
