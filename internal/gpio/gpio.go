// Package gpio provides edge-event subscription and output-line control
// with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Edge selects which transitions are reported for a watched line.
type Edge int

const (
	RisingEdge Edge = iota
	FallingEdge
	BothEdges
)

// Event is a single edge transition on a watched pin.
// Timestamp is the kernel's monotonic timestamp for the event, not wall time.
type Event struct {
	Pin       int
	Rising    bool
	Timestamp time.Duration
}

// Handler receives edge events. It is invoked on the event source's own
// dispatch goroutine and must never block.
type Handler func(Event)

// WatchConfig configures an edge subscription.
type WatchConfig struct {
	Edge Edge

	// NoiseFilter is the minimum steady-state duration before a transition
	// is reported. Zero disables filtering.
	NoiseFilter time.Duration

	// PullUp enables the internal pull-up on the watched line.
	PullUp bool
}

// Lines is the single point of contact with the GPIO subsystem.
type Lines interface {
	// Watch subscribes h to edge events on pin.
	Watch(pin int, cfg WatchConfig, h Handler) error

	// Output claims pin as an output line at the given initial level.
	Output(pin int, initial int) error

	// Write sets the level of a previously claimed output line.
	Write(pin int, value int) error

	// Close releases all claimed lines.
	Close() error
}
