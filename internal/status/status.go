// Package status provides a thread-safe status tracker for the ph-sensor
// daemon. It is read by the HTTP status handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/ph-sensor/internal/sensor"
)

// Config contains daemon configuration for display.
type Config struct {
	NoiseFilterMs int64
	RefractoryMs  int64
	SettleMs      int64
	Broker        string
	HTTPAddr      string
	DatasetNarrow string
	DatasetWide   string
}

// Counts tracks cycle outcomes since startup.
type Counts struct {
	Readings  int // completed cycles with an announced pH
	Stalls    int // cycles abandoned on SensorStall
	NoMatches int // cycles whose sample fell outside the trained range
	Dropped   int // overlapping requests discarded by the replacement policy
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	LastReading   *sensor.Reading
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// RecordReading stores the latest completed reading.
func (t *Tracker) RecordReading(r sensor.Reading) {
	t.mu.Lock()
	t.snap.LastReading = &r
	t.snap.Counts.Readings++
	t.mu.Unlock()
}

// RecordStall counts a cycle abandoned on a stalled sensor output.
func (t *Tracker) RecordStall() {
	t.mu.Lock()
	t.snap.Counts.Stalls++
	t.mu.Unlock()
}

// RecordNoMatch counts a cycle whose sample matched no trained entry.
func (t *Tracker) RecordNoMatch() {
	t.mu.Lock()
	t.snap.Counts.NoMatches++
	t.mu.Unlock()
}

// RecordDropped counts an overlapping request discarded by the
// drop-oldest policy.
func (t *Tracker) RecordDropped() {
	t.mu.Lock()
	t.snap.Counts.Dropped++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
