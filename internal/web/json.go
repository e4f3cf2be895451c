package web

import (
	"encoding/json"
	"time"

	"github.com/sweeney/ph-sensor/internal/status"
)

// StatusJSON is the JSON representation of the daemon status.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	LastReading   *ReadingJSON `json:"last_reading,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"cycle_counts"`
	Config        ConfigJSON   `json:"config"`
}

// ReadingJSON is the JSON representation of the last completed reading.
type ReadingJSON struct {
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

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of cycle counts.
type CountsJSON struct {
	Readings  int `json:"readings"`
	Stalls    int `json:"stalls"`
	NoMatches int `json:"no_matches"`
	Dropped   int `json:"dropped_requests"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	NoiseFilterMs int64  `json:"noise_filter_ms"`
	RefractoryMs  int64  `json:"refractory_ms"`
	SettleMs      int64  `json:"settle_ms"`
	Broker        string `json:"broker"`
	HTTPAddr      string `json:"http_addr"`
	DatasetNarrow string `json:"dataset_narrow"`
	DatasetWide   string `json:"dataset_wide"`
}

func formatJSON(snap status.Snapshot) []byte {
	sj := StatusJSON{
		Status: StatusInner{
			UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
			StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
			Timestamp:     snap.Now.UTC().Format(time.RFC3339),
			MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
			Counts: CountsJSON{
				Readings:  snap.Counts.Readings,
				Stalls:    snap.Counts.Stalls,
				NoMatches: snap.Counts.NoMatches,
				Dropped:   snap.Counts.Dropped,
			},
			Config: ConfigJSON{
				NoiseFilterMs: snap.Config.NoiseFilterMs,
				RefractoryMs:  snap.Config.RefractoryMs,
				SettleMs:      snap.Config.SettleMs,
				Broker:        snap.Config.Broker,
				HTTPAddr:      snap.Config.HTTPAddr,
				DatasetNarrow: snap.Config.DatasetNarrow,
				DatasetWide:   snap.Config.DatasetWide,
			},
		},
	}

	if r := snap.LastReading; r != nil {
		rj := &ReadingJSON{
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
			Scale:     string(r.Scale),
			PH:        r.PH,
		}
		for _, c := range r.Sample.Channels {
			rj.Channels = append(rj.Channels, ChannelJSON{
				Channel: string(c.Channel),
				Hertz:   c.Hertz,
				Pulses:  c.Pulses,
			})
		}
		sj.Status.LastReading = rj
	}

	data, _ := json.MarshalIndent(sj, "", "  ")
	return data
}
