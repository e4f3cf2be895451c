// Command ph-sensor reads litmus paper colour through a TCS3200 sensor on
// button press, announces the matched pH and publishes readings to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sweeney/ph-sensor/internal/announce"
	"github.com/sweeney/ph-sensor/internal/button"
	"github.com/sweeney/ph-sensor/internal/classify"
	"github.com/sweeney/ph-sensor/internal/config"
	"github.com/sweeney/ph-sensor/internal/gpio"
	"github.com/sweeney/ph-sensor/internal/mqtt"
	"github.com/sweeney/ph-sensor/internal/sensor"
	"github.com/sweeney/ph-sensor/internal/status"
	"github.com/sweeney/ph-sensor/internal/web"
)

func main() {
	configPath := flag.String("config", "/etc/ph-sensor/config.yaml", "Path to YAML config file")
	broker := flag.String("broker", "", `MQTT broker override ("off" disables publishing)`)
	httpAddr := flag.String("http", "", `HTTP status address override ("off" disables)`)
	refractory := flag.Duration("refractory", 0, "Button refractory window override")
	verbose := flag.Bool("verbose", false, "Verbose logging")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	applyOverrides(cfg, *broker, *httpAddr, *refractory)

	if err := run(cfg, *verbose); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// applyOverrides folds non-empty flag values into the loaded config.
// "off" for broker or http disables that surface.
func applyOverrides(cfg *config.Config, broker, httpAddr string, refractory time.Duration) {
	if broker != "" {
		cfg.MQTT.Broker = broker
	}
	if httpAddr != "" {
		if httpAddr == "off" {
			cfg.HTTP.Addr = ""
		} else {
			cfg.HTTP.Addr = httpAddr
		}
	}
	if refractory > 0 {
		cfg.Buttons.Refractory = config.Duration(refractory)
	}
}

func run(cfg *config.Config, verbose bool) error {
	lines, err := gpio.NewRealLines(cfg.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer lines.Close()

	classifier, err := classify.New(cfg.Datasets.Narrow, cfg.Datasets.Wide)
	if err != nil {
		return fmt.Errorf("load datasets: %w", err)
	}
	classifier.MaxAngle = cfg.Datasets.MaxAngle

	counter := sensor.NewPulseCounter()
	sensorCoord, err := sensor.New(lines, counter, classifier, sensor.Config{
		PinS0:        cfg.Pins.SensorS0,
		PinS1:        cfg.Pins.SensorS1,
		PinS2:        cfg.Pins.SensorS2,
		PinS3:        cfg.Pins.SensorS3,
		PinOE:        cfg.Pins.SensorOE,
		Scale:        frequencyScale(cfg.Sensor.FrequencyScale),
		Settle:       cfg.Sensor.Settle.Std(),
		Window:       cfg.Sensor.Window.Std(),
		MinWindow:    cfg.Sensor.MinWindow.Std(),
		MaxWindow:    cfg.Sensor.MaxWindow.Std(),
		TargetPulses: cfg.Sensor.TargetPulses,
		StallGrow:    100 * time.Millisecond,
		StallRetries: cfg.Sensor.StallRetries,
		Verbose:      verbose,
	})
	if err != nil {
		return fmt.Errorf("init sensor: %w", err)
	}

	// The pulse counter is fed straight from the OUT line's dispatch
	// goroutine; no noise filter, the square wave is the signal.
	if err := lines.Watch(cfg.Pins.SensorOut, gpio.WatchConfig{Edge: gpio.RisingEdge}, counter.HandleEdge); err != nil {
		return fmt.Errorf("watch sensor output: %w", err)
	}

	btnCoord := button.New(sensorCoord.Requests(), button.Config{
		Poll:       cfg.Buttons.Poll.Std(),
		Refractory: cfg.Buttons.Refractory.Std(),
		Verbose:    verbose,
	})
	btnCfg := gpio.WatchConfig{
		Edge:        gpio.RisingEdge,
		NoiseFilter: cfg.Buttons.NoiseFilter.Std(),
		PullUp:      true,
	}
	if err := lines.Watch(cfg.Pins.ButtonNarrow, btnCfg, btnCoord.EdgeHandler(sensor.ScaleNarrow)); err != nil {
		return fmt.Errorf("watch narrow button: %w", err)
	}
	if err := lines.Watch(cfg.Pins.ButtonWide, btnCfg, btnCoord.EdgeHandler(sensor.ScaleWide)); err != nil {
		return fmt.Errorf("watch wide button: %w", err)
	}

	chime, err := announce.NewChime(lines, cfg.Pins.Chime)
	if err != nil {
		return fmt.Errorf("init chime: %w", err)
	}
	player := announce.NewPlayer(cfg.Audio.Dir, cfg.Audio.Player)

	// Initialize MQTT. A dead broker at boot is not fatal: the appliance
	// still reads and announces locally.
	var publisher mqtt.Publisher
	var connStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker == "off" {
		publisher = mqtt.Nop{}
		connStatus = mqtt.Nop{}
		log.Printf("mqtt disabled")
	} else {
		real, err := mqtt.NewRealPublisher(cfg.MQTT.Broker)
		if err != nil {
			log.Printf("mqtt unavailable, continuing without telemetry: %v", err)
			publisher = mqtt.Nop{}
			connStatus = mqtt.Nop{}
		} else {
			publisher = real
			connStatus = real
		}
	}
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		NoiseFilterMs: cfg.Buttons.NoiseFilter.Std().Milliseconds(),
		RefractoryMs:  cfg.Buttons.Refractory.Std().Milliseconds(),
		SettleMs:      cfg.Sensor.Settle.Std().Milliseconds(),
		Broker:        cfg.MQTT.Broker,
		HTTPAddr:      cfg.HTTP.Addr,
		DatasetNarrow: cfg.Datasets.Narrow,
		DatasetWide:   cfg.Datasets.Wide,
	})

	wireCallbacks(sensorCoord, btnCoord, tracker, publisher, connStatus, chime, player)

	// Startup: long chime, retained STARTUP event.
	if err := chime.Long(); err != nil {
		log.Printf("startup chime: %v", err)
	}
	startup := mqtt.SystemEvent{Timestamp: time.Now(), Event: "STARTUP", Retained: true}
	if err := publisher.PublishSystem(startup); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: chip=%s noise_filter=%v refractory=%v window=%v broker=%s",
		cfg.Chip, cfg.Buttons.NoiseFilter.Std(), cfg.Buttons.Refractory.Std(),
		cfg.Sensor.Window.Std(), cfg.MQTT.Broker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		btnCoord.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		sensorCoord.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	s := <-sigCh
	log.Printf("received %v, shutting down", s)

	shutdown := mqtt.SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    signalName(s),
		Retained:  true,
	}
	if err := publisher.PublishSystem(shutdown); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}

	cancel()
	if !joinWithTimeout(&wg, cfg.Shutdown.JoinTimeout.Std()) {
		return fmt.Errorf("coordinators did not stop within %v", cfg.Shutdown.JoinTimeout.Std())
	}

	if err := sensorCoord.Close(); err != nil {
		log.Printf("park sensor: %v", err)
	}
	return nil
}

// wireCallbacks connects the coordinators to telemetry, status tracking and
// user feedback. Callbacks run on the coordinators' own goroutines.
func wireCallbacks(
	sensorCoord *sensor.Coordinator,
	btnCoord *button.Coordinator,
	tracker *status.Tracker,
	publisher mqtt.Publisher,
	connStatus mqtt.ConnectionStatus,
	chime *announce.Chime,
	player *announce.Player,
) {
	sensorCoord.OnReading = func(r sensor.Reading) {
		tracker.RecordReading(r)
		tracker.SetMQTTConnected(connStatus.IsConnected())
		if err := publisher.PublishReading(r); err != nil {
			log.Printf("publish reading: %v", err)
		}
		if err := player.Play(r.PH); err != nil {
			log.Printf("announce reading: %v", err)
		}
	}

	sensorCoord.OnCycleError = func(scale sensor.Scale, err error) {
		event := mqtt.SystemEvent{Timestamp: time.Now(), Scale: scale, Reason: err.Error()}
		switch {
		case errors.Is(err, sensor.ErrSensorStall):
			tracker.RecordStall()
			event.Event = "SENSOR_STALL"
		case errors.Is(err, classify.ErrNoMatch):
			tracker.RecordNoMatch()
			event.Event = "NO_MATCH"
		default:
			return
		}
		if err := publisher.PublishSystem(event); err != nil {
			log.Printf("publish %s: %v", event.Event, err)
		}
	}

	btnCoord.OnPress = func(scale sensor.Scale) {
		var err error
		if scale == sensor.ScaleWide {
			err = chime.DoubleShort()
		} else {
			err = chime.Short()
		}
		if err != nil {
			log.Printf("press chime: %v", err)
		}
	}

	btnCoord.OnDropped = func(req sensor.Request) {
		log.Printf("dropped overlapping %s request from %s", req.Scale, req.Time.Format(time.RFC3339))
		tracker.RecordDropped()
	}
}

// frequencyScale maps the configured percentage to the S0/S1 setting.
// Unknown values fall back to 20%.
func frequencyScale(pct int) sensor.FrequencyScale {
	switch pct {
	case 2:
		return sensor.Scale2Pct
	case 100:
		return sensor.Scale100Pct
	default:
		return sensor.Scale20Pct
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// joinWithTimeout waits for wg up to d and reports whether it finished.
// A goroutine stuck past the timeout leaks; the caller exits nonzero so the
// supervisor restarts the daemon rather than leaving it wedged.
func joinWithTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
