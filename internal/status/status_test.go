package status

import (
	"sync"
	"testing"
	"time"

	"github.com/sweeney/ph-sensor/internal/sensor"
)

func testConfig() Config {
	return Config{
		NoiseFilterMs: 300,
		RefractoryMs:  2000,
		SettleMs:      5,
		Broker:        "tcp://localhost:1883",
		HTTPAddr:      ":8080",
		DatasetNarrow: "narrow_data.csv",
		DatasetWide:   "wide_data.csv",
	}
}

func TestNewTrackerSnapshot(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(start, testConfig())

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("unexpected start time: %v", snap.StartTime)
	}
	if snap.LastReading != nil {
		t.Error("expected no reading initially")
	}
	if snap.Counts != (Counts{}) {
		t.Errorf("expected zero counts, got %+v", snap.Counts)
	}
	if snap.Config.Broker != "tcp://localhost:1883" {
		t.Errorf("unexpected broker: %s", snap.Config.Broker)
	}
	if snap.Now.IsZero() {
		t.Error("Now must be set by Snapshot")
	}
}

func TestRecordReading(t *testing.T) {
	tr := NewTracker(time.Now(), testConfig())

	r := sensor.Reading{
		Timestamp: time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC),
		Scale:     sensor.ScaleWide,
		PH:        "9",
	}
	tr.RecordReading(r)

	snap := tr.Snapshot()
	if snap.LastReading == nil {
		t.Fatal("expected a recorded reading")
	}
	if snap.LastReading.PH != "9" {
		t.Errorf("unexpected pH: %s", snap.LastReading.PH)
	}
	if snap.Counts.Readings != 1 {
		t.Errorf("expected 1 reading counted, got %d", snap.Counts.Readings)
	}
}

func TestRecordCounters(t *testing.T) {
	tr := NewTracker(time.Now(), testConfig())

	tr.RecordStall()
	tr.RecordStall()
	tr.RecordNoMatch()
	tr.RecordDropped()

	snap := tr.Snapshot()
	want := Counts{Stalls: 2, NoMatches: 1, Dropped: 1}
	if snap.Counts != want {
		t.Errorf("got %+v, want %+v", snap.Counts, want)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), testConfig())

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected connected")
	}
	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected disconnected")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Now().Add(-90 * time.Second)
	tr := NewTracker(start, testConfig())

	up := tr.Snapshot().Uptime()
	if up < 89*time.Second || up > 92*time.Second {
		t.Errorf("unexpected uptime: %v", up)
	}
}

func TestTrackerConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.RecordReading(sensor.Reading{PH: "7"})
				tr.RecordDropped()
				_ = tr.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := tr.Snapshot()
	if snap.Counts.Readings != 800 {
		t.Errorf("expected 800 readings, got %d", snap.Counts.Readings)
	}
	if snap.Counts.Dropped != 800 {
		t.Errorf("expected 800 dropped, got %d", snap.Counts.Dropped)
	}
}
