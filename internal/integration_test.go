package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/ph-sensor/internal/button"
	"github.com/sweeney/ph-sensor/internal/classify"
	"github.com/sweeney/ph-sensor/internal/gpio"
	"github.com/sweeney/ph-sensor/internal/mqtt"
	"github.com/sweeney/ph-sensor/internal/sensor"
)

const (
	pinButtonNarrow = 5
	pinButtonWide   = 6
	pinSensorOut    = 24
)

// rig is the full press-to-reading pipeline over fakes: button edges latch a
// request, the sensor coordinator samples pulses injected on the OUT line and
// the classifier matches them against temp-file datasets.
type rig struct {
	lines    *gpio.FakeLines
	counter  *sensor.PulseCounter
	pub      *mqtt.FakePublisher
	readings chan sensor.Reading
	errs     chan error

	cancel context.CancelFunc
	done   sync.WaitGroup

	stopInjector chan struct{}
}

func newRig(t *testing.T, injectPulses bool) *rig {
	t.Helper()

	dir := t.TempDir()
	data := "7.0,100,100,100\n4.0,100,10,10\n"
	narrow := filepath.Join(dir, "narrow.csv")
	wide := filepath.Join(dir, "wide.csv")
	for _, p := range []string{narrow, wide} {
		if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	classifier, err := classify.New(narrow, wide)
	if err != nil {
		t.Fatalf("classify.New: %v", err)
	}

	lines := gpio.NewFakeLines()
	counter := sensor.NewPulseCounter()

	cfg := sensor.DefaultConfig()
	cfg.Settle = time.Millisecond
	cfg.Window = 10 * time.Millisecond
	cfg.MinWindow = time.Millisecond
	cfg.MaxWindow = 30 * time.Millisecond
	cfg.TargetPulses = 10
	cfg.StallGrow = 10 * time.Millisecond
	cfg.StallRetries = 2

	sensorCoord, err := sensor.New(lines, counter, classifier, cfg)
	if err != nil {
		t.Fatalf("sensor.New: %v", err)
	}
	if err := lines.Watch(pinSensorOut, gpio.WatchConfig{Edge: gpio.RisingEdge}, counter.HandleEdge); err != nil {
		t.Fatalf("watch sensor out: %v", err)
	}

	btnCoord := button.New(sensorCoord.Requests(), button.Config{
		Poll:       5 * time.Millisecond,
		Refractory: 20 * time.Millisecond,
	})
	btnCfg := gpio.WatchConfig{Edge: gpio.RisingEdge, NoiseFilter: 300 * time.Millisecond, PullUp: true}
	if err := lines.Watch(pinButtonNarrow, btnCfg, btnCoord.EdgeHandler(sensor.ScaleNarrow)); err != nil {
		t.Fatalf("watch narrow button: %v", err)
	}
	if err := lines.Watch(pinButtonWide, btnCfg, btnCoord.EdgeHandler(sensor.ScaleWide)); err != nil {
		t.Fatalf("watch wide button: %v", err)
	}

	pub := mqtt.NewFakePublisher()
	pub.Connected = true

	r := &rig{
		lines:        lines,
		counter:      counter,
		pub:          pub,
		readings:     make(chan sensor.Reading, 4),
		errs:         make(chan error, 4),
		stopInjector: make(chan struct{}),
	}

	sensorCoord.OnReading = func(reading sensor.Reading) {
		pub.PublishReading(reading)
		r.readings <- reading
	}
	sensorCoord.OnCycleError = func(scale sensor.Scale, err error) {
		r.errs <- err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done.Add(2)
	go func() {
		defer r.done.Done()
		sensorCoord.Run(ctx)
	}()
	go func() {
		defer r.done.Done()
		btnCoord.Run(ctx)
	}()

	if injectPulses {
		// A steady square wave on OUT: every channel measures the same
		// frequency, which matches the 7.0 dataset row at angle zero.
		go func() {
			ts := time.Duration(0)
			tick := time.NewTicker(200 * time.Microsecond)
			defer tick.Stop()
			for {
				select {
				case <-r.stopInjector:
					return
				case <-tick.C:
					ts += time.Millisecond
					lines.Inject(pinSensorOut, true, ts)
				}
			}
		}()
	}

	t.Cleanup(func() {
		close(r.stopInjector)
		cancel()
		r.done.Wait()
	})
	return r
}

func (r *rig) press(pin int) {
	r.lines.Inject(pin, true, time.Second)
}

func TestPressToReading(t *testing.T) {
	r := newRig(t, true)

	r.press(pinButtonNarrow)

	select {
	case reading := <-r.readings:
		if reading.PH != "7.0" {
			t.Errorf("pH: got %q, want 7.0", reading.PH)
		}
		if reading.Scale != sensor.ScaleNarrow {
			t.Errorf("scale: got %q, want narrow", reading.Scale)
		}
		if len(reading.Sample.Channels) != 3 {
			t.Fatalf("channels: got %d, want 3", len(reading.Sample.Channels))
		}
		order := []sensor.Channel{sensor.ChannelRed, sensor.ChannelBlue, sensor.ChannelGreen}
		for i, want := range order {
			if reading.Sample.Channels[i].Channel != want {
				t.Errorf("channel %d: got %s, want %s", i, reading.Sample.Channels[i].Channel, want)
			}
			if reading.Sample.Channels[i].Pulses < 2 {
				t.Errorf("channel %s: got %d pulses", want, reading.Sample.Channels[i].Pulses)
			}
		}
	case err := <-r.errs:
		t.Fatalf("cycle error: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a reading")
	}

	if len(r.pub.Readings) != 1 {
		t.Errorf("published readings: got %d, want 1", len(r.pub.Readings))
	}
}

func TestWidePressSelectsWideScale(t *testing.T) {
	r := newRig(t, true)

	r.press(pinButtonWide)

	select {
	case reading := <-r.readings:
		if reading.Scale != sensor.ScaleWide {
			t.Errorf("scale: got %q, want wide", reading.Scale)
		}
	case err := <-r.errs:
		t.Fatalf("cycle error: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a reading")
	}
}

func TestStalledSensorEmitsNoReading(t *testing.T) {
	r := newRig(t, false) // no pulses on OUT

	r.press(pinButtonNarrow)

	select {
	case reading := <-r.readings:
		t.Fatalf("unexpected reading from stalled sensor: %+v", reading)
	case err := <-r.errs:
		if !errors.Is(err, sensor.ErrSensorStall) {
			t.Fatalf("expected sensor stall, got: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the stall to surface")
	}
}

func TestFallingEdgeDoesNotTrigger(t *testing.T) {
	r := newRig(t, true)

	// The button lines are watched for rising edges only, so a falling edge
	// never reaches the latch.
	if r.lines.Inject(pinButtonNarrow, false, time.Second) {
		t.Fatal("falling edge should have been filtered")
	}

	select {
	case reading := <-r.readings:
		t.Fatalf("unexpected reading: %+v", reading)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestShutdownMidCycleEmitsNothing(t *testing.T) {
	r := newRig(t, false) // stalled windows keep the cycle busy

	r.press(pinButtonNarrow)
	time.Sleep(2 * time.Millisecond)
	r.cancel()
	r.done.Wait()

	select {
	case reading := <-r.readings:
		t.Fatalf("unexpected reading after shutdown: %+v", reading)
	default:
	}
	if len(r.pub.Readings) != 0 {
		t.Errorf("published readings after shutdown: got %d, want 0", len(r.pub.Readings))
	}
}
