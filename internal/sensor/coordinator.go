package sensor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/ph-sensor/internal/gpio"
)

// Classifier maps a colour sample to a pH value using the trained dataset
// selected by scale.
type Classifier interface {
	Classify(sample Sample, scale Scale) (string, error)
}

// Config contains the sensor wiring and sampling parameters.
type Config struct {
	PinS0, PinS1 int // frequency scale select
	PinS2, PinS3 int // colour filter select
	PinOE        int // output enable, active low

	Scale FrequencyScale

	// Settle is the delay after a filter change before measuring.
	Settle time.Duration

	// Window is the initial per-channel measurement window. Windows are
	// retuned after each cycle to collect about TargetPulses pulses.
	Window       time.Duration
	MinWindow    time.Duration
	MaxWindow    time.Duration
	TargetPulses int

	// StallGrow is added to the window when a measurement sees no edges.
	StallGrow time.Duration

	// StallRetries is the number of extra attempts for a stalled window.
	StallRetries int

	// Sequence overrides the sampling order. Nil means DefaultSequence.
	Sequence []Step

	Verbose bool
}

// DefaultConfig returns the sampling parameters for the stock wiring.
func DefaultConfig() Config {
	return Config{
		PinS0:        4,
		PinS1:        17,
		PinS2:        22,
		PinS3:        23,
		PinOE:        18,
		Scale:        Scale20Pct,
		Settle:       5 * time.Millisecond,
		Window:       100 * time.Millisecond,
		MinWindow:    time.Millisecond,
		MaxWindow:    500 * time.Millisecond,
		TargetPulses: 20,
		StallGrow:    100 * time.Millisecond,
		StallRetries: 3,
	}
}

// Coordinator owns the sensor's control lines and runs reading cycles.
// It is the sole writer of the control lines; the pulse counter is fed by
// the edge source's dispatch goroutine.
//
// Each cycle walks IDLE -> CONFIGURING(i) -> MEASURING(i) -> AGGREGATING ->
// EMITTED over the sampling sequence. A cycle is abandoned without emitting
// when the context is cancelled or a channel stalls past its retry budget.
type Coordinator struct {
	lines      gpio.Lines
	counter    *PulseCounter
	classifier Classifier
	cfg        Config
	sequence   []Step
	requests   chan Request
	windows    map[Channel]time.Duration

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error

	// OnReading is invoked exactly once per completed cycle.
	OnReading func(Reading)

	// OnCycleError is invoked when a cycle is abandoned for a reason other
	// than shutdown (sensor stall, classification failure).
	OnCycleError func(Scale, error)
}

// New claims the sensor's control lines, applies the frequency scale,
// selects the idle filter and enables the device.
func New(lines gpio.Lines, counter *PulseCounter, classifier Classifier, cfg Config) (*Coordinator, error) {
	seq := cfg.Sequence
	if seq == nil {
		seq = DefaultSequence()
	}

	c := &Coordinator{
		lines:      lines,
		counter:    counter,
		classifier: classifier,
		cfg:        cfg,
		sequence:   seq,
		requests:   make(chan Request, 1),
		windows:    make(map[Channel]time.Duration, len(seq)),
		now:        time.Now,
		wait:       sleepCtx,
	}
	for _, step := range seq {
		c.windows[step.Channel] = cfg.Window
	}

	for _, pin := range []int{cfg.PinS0, cfg.PinS1, cfg.PinS2, cfg.PinS3} {
		if err := lines.Output(pin, 0); err != nil {
			return nil, fmt.Errorf("claim control line: %w", err)
		}
	}
	// OE is active low; claim inactive, enable after setup.
	if err := lines.Output(cfg.PinOE, 1); err != nil {
		return nil, fmt.Errorf("claim OE line: %w", err)
	}

	if err := c.setFrequencyScale(cfg.Scale); err != nil {
		return nil, err
	}
	if err := c.selectFilter(stepClear); err != nil {
		return nil, err
	}
	if err := lines.Write(cfg.PinOE, 0); err != nil {
		return nil, fmt.Errorf("enable device: %w", err)
	}

	return c, nil
}

// Requests returns the size-1 request channel. The button coordinator uses
// it directly so it can apply its drop-oldest replacement policy.
func (c *Coordinator) Requests() chan Request {
	return c.requests
}

// Run services reading requests until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.requests:
			// The select chooses randomly when cancellation and a queued
			// press are both ready; no cycle may start once shutdown begins.
			if ctx.Err() != nil {
				log.Printf("sensor: discarding queued %s request during shutdown", req.Scale)
				return
			}
			reading, err := c.cycle(ctx, req)
			if err != nil {
				if ctx.Err() != nil {
					log.Printf("sensor: reading cycle abandoned during shutdown (scale=%s)", req.Scale)
					return
				}
				log.Printf("sensor: reading cycle failed (scale=%s): %v", req.Scale, err)
				if c.OnCycleError != nil {
					c.OnCycleError(req.Scale, err)
				}
				continue
			}
			log.Printf("sensor: read pH %s (scale=%s, sample=%v)", reading.PH, reading.Scale, reading.Sample.Channels)
			if c.OnReading != nil {
				c.OnReading(reading)
			}
		}
	}
}

// cycle runs one full pass over the sampling sequence and classifies the
// result. No partial sample is ever emitted: any error abandons the cycle.
func (c *Coordinator) cycle(ctx context.Context, req Request) (Reading, error) {
	// Idle on the clear filter between cycles.
	defer c.selectFilter(stepClear)

	channels := make([]ChannelReading, 0, len(c.sequence))
	for _, step := range c.sequence {
		// CONFIGURING(i)
		if err := c.selectFilter(step); err != nil {
			return Reading{}, err
		}
		if err := c.wait(ctx, c.cfg.Settle); err != nil {
			return Reading{}, err
		}

		// MEASURING(i)
		cr, err := c.measure(ctx, step.Channel)
		if err != nil {
			return Reading{}, err
		}
		channels = append(channels, cr)
	}

	// AGGREGATING
	sample := Sample{Channels: channels}
	ph, err := c.classifier.Classify(sample, req.Scale)
	if err != nil {
		return Reading{}, fmt.Errorf("classify: %w", err)
	}

	// EMITTED
	return Reading{
		Timestamp: c.now(),
		Scale:     req.Scale,
		Sample:    sample,
		PH:        ph,
	}, nil
}

// measure times pulses on the OUT line for one channel, retrying stalled
// windows up to the configured budget.
func (c *Coordinator) measure(ctx context.Context, ch Channel) (ChannelReading, error) {
	window := c.windows[ch]
	for attempt := 0; attempt <= c.cfg.StallRetries; attempt++ {
		if attempt > 0 && c.cfg.Verbose {
			log.Printf("sensor: channel %s stalled, retry %d with window %v", ch, attempt, window)
		}

		c.counter.Arm()
		err := c.wait(ctx, window)
		pulses, hertz := c.counter.Disarm()
		if err != nil {
			return ChannelReading{}, err
		}

		if pulses >= 2 && hertz > 0 {
			c.windows[ch] = c.tuneWindow(hertz)
			return ChannelReading{Channel: ch, Hertz: hertz, Pulses: pulses}, nil
		}

		window = c.clampWindow(window + c.cfg.StallGrow)
	}

	c.windows[ch] = window
	return ChannelReading{}, fmt.Errorf("channel %s: %w", ch, ErrSensorStall)
}

// tuneWindow sizes the next window for a channel so it collects about
// TargetPulses pulses at the frequency just observed.
func (c *Coordinator) tuneWindow(hertz float64) time.Duration {
	d := time.Duration(float64(c.cfg.TargetPulses) / hertz * float64(time.Second))
	return c.clampWindow(d)
}

func (c *Coordinator) clampWindow(d time.Duration) time.Duration {
	if d < c.cfg.MinWindow {
		return c.cfg.MinWindow
	}
	if d > c.cfg.MaxWindow {
		return c.cfg.MaxWindow
	}
	return d
}

func (c *Coordinator) selectFilter(step Step) error {
	if err := c.lines.Write(c.cfg.PinS2, step.S2); err != nil {
		return fmt.Errorf("select filter %s: %w", step.Channel, err)
	}
	if err := c.lines.Write(c.cfg.PinS3, step.S3); err != nil {
		return fmt.Errorf("select filter %s: %w", step.Channel, err)
	}
	return nil
}

func (c *Coordinator) setFrequencyScale(f FrequencyScale) error {
	s0, s1 := f.levels()
	if err := c.lines.Write(c.cfg.PinS0, s0); err != nil {
		return fmt.Errorf("set frequency scale: %w", err)
	}
	if err := c.lines.Write(c.cfg.PinS1, s1); err != nil {
		return fmt.Errorf("set frequency scale: %w", err)
	}
	return nil
}

// Close parks the sensor: frequency output off, clear filter, device
// disabled. Call after Run has returned.
func (c *Coordinator) Close() error {
	if err := c.setFrequencyScale(ScaleOff); err != nil {
		return err
	}
	if err := c.selectFilter(stepClear); err != nil {
		return err
	}
	if err := c.lines.Write(c.cfg.PinOE, 1); err != nil {
		return fmt.Errorf("disable device: %w", err)
	}
	return nil
}

// sleepCtx waits for d or until the context is cancelled, whichever comes
// first. Every suspension in a cycle goes through here so shutdown is
// observed with bounded latency.
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
