package engine

import "sync/atomic"

// Counters tracks how many requests an instance has served, broken down
// by the pipeline stage that produced the response. Counters never
// decrease; fallback responses count only toward the total.
type Counters struct {
	total atomic.Uint64
	stump atomic.Uint64
	proxy atomic.Uint64
}

// Total returns the number of requests served by any stage.
func (c *Counters) Total() uint64 { return c.total.Load() }

// ServedWithStump returns the number of requests answered by a stump.
func (c *Counters) ServedWithStump() uint64 { return c.stump.Load() }

// ServedWithProxy returns the number of requests relayed upstream.
func (c *Counters) ServedWithProxy() uint64 { return c.proxy.Load() }

// recordServed increments the counters for one served request.
func (c *Counters) recordServed(stage stage) {
	switch stage {
	case stageStump:
		c.stump.Add(1)
	case stageProxy:
		c.proxy.Add(1)
	}
	c.total.Add(1)
}
