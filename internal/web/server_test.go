package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/ph-sensor/internal/sensor"
	"github.com/sweeney/ph-sensor/internal/status"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		NoiseFilterMs: 300,
		RefractoryMs:  2000,
		SettleMs:      5,
		Broker:        "tcp://192.168.1.200:1883",
		HTTPAddr:      ":8080",
		DatasetNarrow: "narrow_data.csv",
		DatasetWide:   "wide_data.csv",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr
}

func testReading() sensor.Reading {
	return sensor.Reading{
		Timestamp: time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC),
		Scale:     sensor.ScaleNarrow,
		PH:        "6.5",
		Sample: sensor.Sample{Channels: []sensor.ChannelReading{
			{Channel: sensor.ChannelRed, Hertz: 812.5, Pulses: 21},
			{Channel: sensor.ChannelBlue, Hertz: 430.0, Pulses: 20},
			{Channel: sensor.ChannelGreen, Hertz: 655.2, Pulses: 22},
		}},
	}
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.RecordReading(testReading())
	tr.RecordStall()
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.LastReading == nil {
		t.Fatal("expected last_reading in JSON")
	}
	if sj.Status.LastReading.PH != "6.5" {
		t.Errorf("pH: got %q, want 6.5", sj.Status.LastReading.PH)
	}
	if sj.Status.LastReading.Scale != "narrow" {
		t.Errorf("scale: got %q, want narrow", sj.Status.LastReading.Scale)
	}
	if len(sj.Status.LastReading.Channels) != 3 {
		t.Errorf("channels: got %d, want 3", len(sj.Status.LastReading.Channels))
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Counts.Readings != 1 {
		t.Errorf("Counts.Readings: got %d, want 1", sj.Status.Counts.Readings)
	}
	if sj.Status.Counts.Stalls != 1 {
		t.Errorf("Counts.Stalls: got %d, want 1", sj.Status.Counts.Stalls)
	}
	if sj.Status.Config.RefractoryMs != 2000 {
		t.Errorf("Config.RefractoryMs: got %d, want 2000", sj.Status.Config.RefractoryMs)
	}
	if sj.Status.Config.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("Config.Broker: got %q", sj.Status.Config.Broker)
	}
}

func TestJSONNoReadingYet(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj StatusJSON
	json.NewDecoder(resp.Body).Decode(&sj)

	if sj.Status.LastReading != nil {
		t.Errorf("expected no last_reading before first cycle, got %+v", sj.Status.LastReading)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.RecordReading(testReading())

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "6.5") {
		t.Error("expected pH value in HTML body")
	}
}

func TestHTMLEndpointNoReading(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "no reading yet") {
		t.Error("expected placeholder before first reading")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestCountsReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)

	resp1, _ := http.Get(ts.URL + "/index.json")
	var sj1 StatusJSON
	json.NewDecoder(resp1.Body).Decode(&sj1)
	resp1.Body.Close()
	if sj1.Status.Counts.Dropped != 0 {
		t.Errorf("expected 0 dropped initially, got %d", sj1.Status.Counts.Dropped)
	}

	tr.RecordDropped()
	tr.RecordNoMatch()

	resp2, _ := http.Get(ts.URL + "/index.json")
	var sj2 StatusJSON
	json.NewDecoder(resp2.Body).Decode(&sj2)
	resp2.Body.Close()

	if sj2.Status.Counts.Dropped != 1 {
		t.Errorf("Counts.Dropped: got %d, want 1", sj2.Status.Counts.Dropped)
	}
	if sj2.Status.Counts.NoMatches != 1 {
		t.Errorf("Counts.NoMatches: got %d, want 1", sj2.Status.Counts.NoMatches)
	}
}
