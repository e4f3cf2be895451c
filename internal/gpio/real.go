//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealLines drives actual hardware through the Linux GPIO character device.
type RealLines struct {
	chip    *gpiocdev.Chip
	inputs  map[int]*gpiocdev.Line
	outputs map[int]*gpiocdev.Line
}

// NewRealLines opens the named GPIO chip (e.g. "gpiochip0").
func NewRealLines(chip string) (*RealLines, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chip, err)
	}
	return &RealLines{
		chip:    c,
		inputs:  make(map[int]*gpiocdev.Line),
		outputs: make(map[int]*gpiocdev.Line),
	}, nil
}

// Watch requests pin as an input delivering edge events to h.
// The handler runs on gpiocdev's event goroutine; the kernel debounce period
// implements the noise filter.
func (r *RealLines) Watch(pin int, cfg WatchConfig, h Handler) error {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			h(Event{
				Pin:       evt.Offset,
				Rising:    evt.Type == gpiocdev.LineEventRisingEdge,
				Timestamp: evt.Timestamp,
			})
		}),
	}

	switch cfg.Edge {
	case RisingEdge:
		opts = append(opts, gpiocdev.WithRisingEdge)
	case FallingEdge:
		opts = append(opts, gpiocdev.WithFallingEdge)
	default:
		opts = append(opts, gpiocdev.WithBothEdges)
	}
	if cfg.PullUp {
		opts = append(opts, gpiocdev.WithPullUp)
	}
	if cfg.NoiseFilter > 0 {
		opts = append(opts, gpiocdev.WithDebounce(cfg.NoiseFilter))
	}

	line, err := r.chip.RequestLine(pin, opts...)
	if err != nil {
		return fmt.Errorf("watch pin %d: %w", pin, err)
	}
	r.inputs[pin] = line
	return nil
}

// Output claims pin as an output line at the given initial level.
func (r *RealLines) Output(pin int, initial int) error {
	line, err := r.chip.RequestLine(pin, gpiocdev.AsOutput(initial))
	if err != nil {
		return fmt.Errorf("request output pin %d: %w", pin, err)
	}
	r.outputs[pin] = line
	return nil
}

// Write sets the level of a claimed output line.
func (r *RealLines) Write(pin int, value int) error {
	line, ok := r.outputs[pin]
	if !ok {
		return fmt.Errorf("write pin %d: not claimed as output", pin)
	}
	if err := line.SetValue(value); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// Close releases all claimed lines.
// Outputs are reconfigured to inputs first so the sensor's control lines
// float at their boot defaults after the daemon exits.
func (r *RealLines) Close() error {
	var errs []error

	for pin, line := range r.inputs {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input pin %d: %w", pin, err))
		}
	}
	for pin, line := range r.outputs {
		if err := line.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output pin %d: %w", pin, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
