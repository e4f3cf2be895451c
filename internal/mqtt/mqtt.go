// Package mqtt publishes reading and system events with abstraction for
// testing. Publishing is best-effort telemetry: failures are logged by the
// caller and never abort a reading cycle.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/ph-sensor/internal/sensor"
)

// TopicReadings is the MQTT topic for completed reading cycles.
const TopicReadings = "lab/ph-sensor/readings"

// TopicSystem is the MQTT topic for system lifecycle and fault events.
const TopicSystem = "lab/ph-sensor/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishReading sends one completed reading cycle to the broker.
	PublishReading(r sensor.Reading) error

	// PublishSystem sends a system lifecycle or fault event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a lifecycle or abnormal-condition event.
type SystemEvent struct {
	Timestamp time.Time
	Event     string // "STARTUP", "SHUTDOWN", "SENSOR_STALL", "NO_MATCH"
	Reason    string // e.g. "SIGTERM", or the fault detail
	Scale     sensor.Scale
	Retained  bool
}

// ReadingPayload is the MQTT message envelope for a reading event.
type ReadingPayload struct {
	Reading ReadingInner `json:"reading"`
}

// ReadingInner contains the reading details.
type ReadingInner struct {
	Timestamp string        `json:"timestamp"`
	Scale     string        `json:"scale"`
	PH        string        `json:"ph"`
	Channels  []ChannelJSON `json:"channels"`
}

// ChannelJSON is one measured channel of the colour sample.
type ChannelJSON struct {
	Channel string  `json:"channel"`
	Hertz   float64 `json:"hertz"`
	Pulses  int     `json:"pulses"`
}

// FormatReadingPayload creates the JSON payload for a reading event.
func FormatReadingPayload(r sensor.Reading) ([]byte, error) {
	channels := make([]ChannelJSON, 0, len(r.Sample.Channels))
	for _, c := range r.Sample.Channels {
		channels = append(channels, ChannelJSON{
			Channel: string(c.Channel),
			Hertz:   c.Hertz,
			Pulses:  c.Pulses,
		})
	}
	payload := ReadingPayload{
		Reading: ReadingInner{
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
			Scale:     string(r.Scale),
			PH:        r.PH,
			Channels:  channels,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the MQTT message envelope for a system event.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	Scale     string `json:"scale,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Scale:     string(event.Scale),
		},
	}
	return json.Marshal(payload)
}

// Nop is a Publisher that discards everything. Used when telemetry is
// disabled.
type Nop struct{}

func (Nop) PublishReading(sensor.Reading) error { return nil }
func (Nop) PublishSystem(SystemEvent) error     { return nil }
func (Nop) Close() error                        { return nil }
func (Nop) IsConnected() bool                   { return false }
