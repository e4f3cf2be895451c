package gpio

import (
	"fmt"
	"sync"
	"time"
)

// FakeLines is a test double that records output writes and lets tests
// inject edge events. Inject invokes the registered handler synchronously on
// the caller's goroutine, standing in for the event source's dispatch
// goroutine.
type FakeLines struct {
	mu       sync.Mutex
	handlers map[int]Handler
	watches  map[int]WatchConfig
	levels   map[int]int
	writes   []Write

	// Closed tracks if Close was called.
	Closed bool

	// WriteError, if set, will be returned by Write.
	WriteError error
}

// Write records a single output-line write.
type Write struct {
	Pin   int
	Value int
}

// NewFakeLines creates a FakeLines.
func NewFakeLines() *FakeLines {
	return &FakeLines{
		handlers: make(map[int]Handler),
		watches:  make(map[int]WatchConfig),
		levels:   make(map[int]int),
	}
}

// Watch registers the handler for later injection.
func (f *FakeLines) Watch(pin int, cfg WatchConfig, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[pin] = h
	f.watches[pin] = cfg
	return nil
}

// Output claims pin at the given initial level.
func (f *FakeLines) Output(pin int, initial int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[pin] = initial
	return nil
}

// Write records the write and updates the pin level.
func (f *FakeLines) Write(pin int, value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	if _, ok := f.levels[pin]; !ok {
		return fmt.Errorf("write pin %d: not claimed as output", pin)
	}
	f.levels[pin] = value
	f.writes = append(f.writes, Write{Pin: pin, Value: value})
	return nil
}

// Close marks the lines as closed.
func (f *FakeLines) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Inject delivers an edge event to the handler watching pin, applying the
// registered edge filter. Returns false if no handler is watching or the
// edge direction is filtered out.
func (f *FakeLines) Inject(pin int, rising bool, ts time.Duration) bool {
	f.mu.Lock()
	h, ok := f.handlers[pin]
	cfg := f.watches[pin]
	f.mu.Unlock()

	if !ok {
		return false
	}
	if cfg.Edge == RisingEdge && !rising {
		return false
	}
	if cfg.Edge == FallingEdge && rising {
		return false
	}
	h(Event{Pin: pin, Rising: rising, Timestamp: ts})
	return true
}

// Level returns the current level of a claimed output pin.
func (f *FakeLines) Level(pin int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[pin]
}

// Writes returns a copy of all recorded writes.
func (f *FakeLines) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Write, len(f.writes))
	copy(out, f.writes)
	return out
}

// WatchConfigFor returns the configuration registered for pin.
func (f *FakeLines) WatchConfigFor(pin int) (WatchConfig, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.watches[pin]
	return cfg, ok
}
