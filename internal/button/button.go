// Package button converts debounced edge events from the two push-buttons
// into reading requests, one per physical press.
//
// The edge source's noise filter suppresses electrical bounce below the
// configured pulse width; this package adds the refractory window that
// coalesces mechanical double-presses into a single request.
package button

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/sweeney/ph-sensor/internal/gpio"
	"github.com/sweeney/ph-sensor/internal/sensor"
)

// Latch is the pending-read flag for one button. Set runs on the edge
// source's dispatch goroutine and must never block, so the flag is a single
// atomic. It transitions high only on a qualifying rising edge and low only
// after the coordinator has consumed it and finished its refractory sleep.
type Latch struct {
	pending atomic.Bool
}

// Set marks a press as pending.
func (l *Latch) Set() { l.pending.Store(true) }

// Pending reports whether a press is waiting to be serviced.
func (l *Latch) Pending() bool { return l.pending.Load() }

func (l *Latch) clear() { l.pending.Store(false) }

// Config contains the button coordinator's timing parameters.
type Config struct {
	// Poll bounds the wait between checks of the pending flags, so shutdown
	// is observed promptly rather than blocking indefinitely.
	Poll time.Duration

	// Refractory is the window after an accepted press during which further
	// edges from either button are coalesced.
	Refractory time.Duration

	Verbose bool
}

// DefaultConfig mirrors the appliance's stock timings.
func DefaultConfig() Config {
	return Config{
		Poll:       50 * time.Millisecond,
		Refractory: 2 * time.Second,
	}
}

// Coordinator watches the two button latches and dispatches reading
// requests to the sensor coordinator's size-1 queue.
type Coordinator struct {
	cfg      Config
	narrow   Latch
	wide     Latch
	requests chan sensor.Request
	scan     int // button index the next service pass checks first

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error

	// OnPress is invoked when a press is accepted, before the request is
	// dispatched. Used for chime feedback.
	OnPress func(sensor.Scale)

	// OnDropped is invoked when the replacement policy discards an
	// unconsumed request.
	OnDropped func(sensor.Request)
}

// New creates a Coordinator dispatching into requests, which must have
// capacity 1 (the sensor coordinator's queue).
func New(requests chan sensor.Request, cfg Config) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		requests: requests,
		now:      time.Now,
		wait:     sleepCtx,
	}
}

// EdgeHandler returns the edge callback for the button mapped to scale.
// The handler only latches the flag; all real work happens on the
// coordinator's own goroutine.
func (c *Coordinator) EdgeHandler(scale sensor.Scale) gpio.Handler {
	latch := c.latchFor(scale)
	return func(ev gpio.Event) {
		if !ev.Rising {
			return
		}
		latch.Set()
	}
}

func (c *Coordinator) latchFor(scale sensor.Scale) *Latch {
	if scale == sensor.ScaleWide {
		return &c.wide
	}
	return &c.narrow
}

// Run services the latches until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.service(ctx)
		}
	}
}

// service accepts at most one pending press per pass. The scan rotates to
// the other button after each accepted press, so sustained presses on one
// button cannot starve the other. The refractory sleep happens before the
// latch is cleared, so edges arriving during the window are coalesced into
// the already-set flag and then discarded with it.
func (c *Coordinator) service(ctx context.Context) {
	buttons := [2]struct {
		latch *Latch
		scale sensor.Scale
	}{
		{&c.narrow, sensor.ScaleNarrow},
		{&c.wide, sensor.ScaleWide},
	}
	for i := range buttons {
		idx := (c.scan + i) % len(buttons)
		b := buttons[idx]
		if !b.latch.Pending() {
			continue
		}

		log.Printf("button: %s press accepted", b.scale)
		if c.OnPress != nil {
			c.OnPress(b.scale)
		}
		c.dispatch(sensor.Request{Scale: b.scale, Time: c.now()})
		c.scan = (idx + 1) % len(buttons)

		c.wait(ctx, c.cfg.Refractory)
		b.latch.clear()
		return
	}
}

// dispatch hands the request to the sensor coordinator. The queue holds one
// request; if it is already full the unconsumed request is replaced
// (drop-oldest), so the most recent press wins.
func (c *Coordinator) dispatch(req sensor.Request) {
	select {
	case c.requests <- req:
		return
	default:
	}

	select {
	case old := <-c.requests:
		if c.cfg.Verbose {
			log.Printf("button: overlapping request, dropping queued %s press", old.Scale)
		}
		if c.OnDropped != nil {
			c.OnDropped(old)
		}
	default:
	}

	select {
	case c.requests <- req:
	default:
		// Raced with another producer; drop the new request instead.
		if c.cfg.Verbose {
			log.Printf("button: overlapping request, dropping %s press", req.Scale)
		}
		if c.OnDropped != nil {
			c.OnDropped(req)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
