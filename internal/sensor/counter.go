package sensor

import (
	"sync/atomic"
	"time"

	"github.com/sweeney/ph-sensor/internal/gpio"
)

// PulseCounter accumulates rising edges on the sensor's OUT line during a
// measurement window. HandleEdge runs on the edge source's dispatch
// goroutine and must never block, so all fields are atomics; edges arriving
// while the counter is not armed are discarded.
type PulseCounter struct {
	armed atomic.Bool
	count atomic.Int64
	first atomic.Int64 // ns, timestamp of the first counted edge
	last  atomic.Int64 // ns, timestamp of the most recent counted edge
}

// NewPulseCounter creates a disarmed PulseCounter.
func NewPulseCounter() *PulseCounter {
	return &PulseCounter{}
}

// HandleEdge records one rising edge if the counter is armed.
func (c *PulseCounter) HandleEdge(ev gpio.Event) {
	if !ev.Rising {
		return
	}
	if !c.armed.Load() {
		return
	}
	ns := int64(ev.Timestamp)
	if c.count.Add(1) == 1 {
		c.first.Store(ns)
	} else {
		c.last.Store(ns)
	}
}

// Arm clears the counter and starts accepting edges.
func (c *PulseCounter) Arm() {
	c.count.Store(0)
	c.first.Store(0)
	c.last.Store(0)
	c.armed.Store(true)
}

// Disarm stops accepting edges and returns the pulse count and the
// frequency derived from the first and last edge timestamps. Fewer than two
// pulses yield a frequency of zero.
func (c *PulseCounter) Disarm() (pulses int, hertz float64) {
	c.armed.Store(false)
	n := c.count.Load()
	if n < 2 {
		return int(n), 0
	}
	td := c.last.Load() - c.first.Load()
	if td <= 0 {
		return int(n), 0
	}
	// n pulses span n-1 full periods.
	hertz = float64(n-1) * float64(time.Second) / float64(td)
	return int(n), hertz
}
