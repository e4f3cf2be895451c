// Package sensor drives a TCS3200 colour sensor through its sampling
// sequence and produces one colour sample per reading cycle.
//
// The sensor exposes four control lines and one output:
//
//	S0/S1  output frequency scaling (off, 2%, 20%, 100%)
//	S2/S3  colour filter selection (red, green, blue, clear)
//	OE     output enable, active low
//	OUT    square wave whose frequency is proportional to the intensity
//	       of the selected filter colour
package sensor

import (
	"errors"
	"time"
)

// Scale selects which trained litmus dataset a reading is matched against.
type Scale string

const (
	ScaleNarrow Scale = "narrow"
	ScaleWide   Scale = "wide"
)

// Channel identifies a colour filter of the sensor.
type Channel string

const (
	ChannelRed   Channel = "red"
	ChannelGreen Channel = "green"
	ChannelBlue  Channel = "blue"
	ChannelClear Channel = "clear"
)

// Step is one entry of the sampling configuration: a filter selection and
// the S2/S3 levels that select it.
type Step struct {
	Channel Channel
	S2, S3  int
}

// DefaultSequence samples red, blue then green. The order toggles a single
// select line between consecutive filters, which keeps the sensor output
// glitch-free across transitions.
func DefaultSequence() []Step {
	return []Step{
		{Channel: ChannelRed, S2: 0, S3: 0},
		{Channel: ChannelBlue, S2: 0, S3: 1},
		{Channel: ChannelGreen, S2: 1, S3: 1},
	}
}

// stepClear is the idle filter selected between reading cycles.
var stepClear = Step{Channel: ChannelClear, S2: 1, S3: 0}

// FrequencyScale is the S0/S1 output frequency scaling.
type FrequencyScale int

const (
	ScaleOff     FrequencyScale = iota // S0=0 S1=0
	Scale2Pct                          // S0=0 S1=1
	Scale20Pct                         // S0=1 S1=0
	Scale100Pct                        // S0=1 S1=1
)

func (f FrequencyScale) levels() (s0, s1 int) {
	switch f {
	case Scale2Pct:
		return 0, 1
	case Scale20Pct:
		return 1, 0
	case Scale100Pct:
		return 1, 1
	default:
		return 0, 0
	}
}

// ChannelReading is the measured output for one sampling configuration.
type ChannelReading struct {
	Channel Channel
	Hertz   float64
	Pulses  int
}

// Sample is one complete colour sample, immutable once produced.
// Channels appear in the configured sampling order.
type Sample struct {
	Channels []ChannelReading
}

// Hertz returns the measured frequency for ch, or 0 if ch was not sampled.
func (s Sample) Hertz(ch Channel) float64 {
	for _, c := range s.Channels {
		if c.Channel == ch {
			return c.Hertz
		}
	}
	return 0
}

// AllZero reports whether every channel measured zero.
func (s Sample) AllZero() bool {
	for _, c := range s.Channels {
		if c.Hertz != 0 {
			return false
		}
	}
	return true
}

// Request asks the coordinator to run one reading cycle.
type Request struct {
	Scale Scale
	Time  time.Time
}

// Reading is the completed result of one reading cycle.
type Reading struct {
	Timestamp time.Time
	Scale     Scale
	Sample    Sample
	PH        string
}

// ErrSensorStall reports a measurement window with too few output
// transitions after all retries were exhausted.
var ErrSensorStall = errors.New("sensor: output stalled")
