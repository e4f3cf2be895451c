// Package config loads the daemon configuration from a YAML file, falling
// back to defaults for anything missing.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "300ms"
// or "2s".
type Duration time.Duration

// UnmarshalYAML parses either a duration string or integer nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the daemon configuration.
type Config struct {
	Chip     string         `yaml:"chip"`
	Pins     PinsConfig     `yaml:"pins"`
	Buttons  ButtonsConfig  `yaml:"buttons"`
	Sensor   SensorConfig   `yaml:"sensor"`
	Datasets DatasetsConfig `yaml:"datasets"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	HTTP     HTTPConfig     `yaml:"http"`
	Audio    AudioConfig    `yaml:"audio"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
}

// PinsConfig contains the BCM pin assignments.
type PinsConfig struct {
	ButtonNarrow int `yaml:"button_narrow"`
	ButtonWide   int `yaml:"button_wide"`
	Chime        int `yaml:"chime"`
	SensorOut    int `yaml:"sensor_out"`
	SensorS0     int `yaml:"sensor_s0"`
	SensorS1     int `yaml:"sensor_s1"`
	SensorS2     int `yaml:"sensor_s2"`
	SensorS3     int `yaml:"sensor_s3"`
	SensorOE     int `yaml:"sensor_oe"`
}

// ButtonsConfig contains button debounce parameters.
type ButtonsConfig struct {
	NoiseFilter Duration `yaml:"noise_filter"` // source-level minimum pulse width
	Refractory  Duration `yaml:"refractory"`   // ignore window after an accepted press
	Poll        Duration `yaml:"poll"`         // bounded wait between flag checks
}

// SensorConfig contains sampling parameters.
type SensorConfig struct {
	Settle         Duration `yaml:"settle"`
	Window         Duration `yaml:"window"`
	MinWindow      Duration `yaml:"min_window"`
	MaxWindow      Duration `yaml:"max_window"`
	TargetPulses   int      `yaml:"target_pulses"`
	StallRetries   int      `yaml:"stall_retries"`
	FrequencyScale int      `yaml:"frequency_scale"` // percent: 2, 20 or 100
}

// DatasetsConfig locates the trained litmus datasets.
type DatasetsConfig struct {
	Narrow   string  `yaml:"narrow"`
	Wide     string  `yaml:"wide"`
	MaxAngle float32 `yaml:"max_angle"` // radians
}

// MQTTConfig contains broker settings. Broker "off" disables publishing.
type MQTTConfig struct {
	Broker string `yaml:"broker"`
}

// HTTPConfig contains status server settings. Empty addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// AudioConfig contains announcement settings.
type AudioConfig struct {
	Dir    string `yaml:"dir"`
	Player string `yaml:"player"`
}

// ShutdownConfig contains shutdown parameters.
type ShutdownConfig struct {
	JoinTimeout Duration `yaml:"join_timeout"`
}

// Default returns a configuration matching the stock wiring.
func Default() *Config {
	return &Config{
		Chip: "gpiochip0",
		Pins: PinsConfig{
			ButtonNarrow: 5,
			ButtonWide:   6,
			Chime:        21,
			SensorOut:    24,
			SensorS0:     4,
			SensorS1:     17,
			SensorS2:     22,
			SensorS3:     23,
			SensorOE:     18,
		},
		Buttons: ButtonsConfig{
			NoiseFilter: Duration(300 * time.Millisecond),
			Refractory:  Duration(2 * time.Second),
			Poll:        Duration(100 * time.Millisecond),
		},
		Sensor: SensorConfig{
			Settle:         Duration(5 * time.Millisecond),
			Window:         Duration(100 * time.Millisecond),
			MinWindow:      Duration(time.Millisecond),
			MaxWindow:      Duration(500 * time.Millisecond),
			TargetPulses:   20,
			StallRetries:   3,
			FrequencyScale: 20,
		},
		Datasets: DatasetsConfig{
			Narrow:   "./narrow_data.csv",
			Wide:     "./wide_data.csv",
			MaxAngle: 0.35,
		},
		MQTT: MQTTConfig{
			Broker: "tcp://localhost:1883",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Audio: AudioConfig{
			Dir:    "./audio",
			Player: "omxplayer",
		},
		Shutdown: ShutdownConfig{
			JoinTimeout: Duration(5 * time.Second),
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults fills required fields left zero by a partial file.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Chip == "" {
		c.Chip = def.Chip
	}

	if c.Buttons.NoiseFilter == 0 {
		c.Buttons.NoiseFilter = def.Buttons.NoiseFilter
	}
	if c.Buttons.Refractory == 0 {
		c.Buttons.Refractory = def.Buttons.Refractory
	}
	if c.Buttons.Poll == 0 {
		c.Buttons.Poll = def.Buttons.Poll
	}

	if c.Sensor.Settle == 0 {
		c.Sensor.Settle = def.Sensor.Settle
	}
	if c.Sensor.Window == 0 {
		c.Sensor.Window = def.Sensor.Window
	}
	if c.Sensor.MinWindow == 0 {
		c.Sensor.MinWindow = def.Sensor.MinWindow
	}
	if c.Sensor.MaxWindow == 0 {
		c.Sensor.MaxWindow = def.Sensor.MaxWindow
	}
	if c.Sensor.TargetPulses == 0 {
		c.Sensor.TargetPulses = def.Sensor.TargetPulses
	}
	if c.Sensor.StallRetries == 0 {
		c.Sensor.StallRetries = def.Sensor.StallRetries
	}
	if c.Sensor.FrequencyScale == 0 {
		c.Sensor.FrequencyScale = def.Sensor.FrequencyScale
	}

	if c.Datasets.Narrow == "" {
		c.Datasets.Narrow = def.Datasets.Narrow
	}
	if c.Datasets.Wide == "" {
		c.Datasets.Wide = def.Datasets.Wide
	}
	if c.Datasets.MaxAngle == 0 {
		c.Datasets.MaxAngle = def.Datasets.MaxAngle
	}

	if c.Audio.Dir == "" {
		c.Audio.Dir = def.Audio.Dir
	}
	if c.Audio.Player == "" {
		c.Audio.Player = def.Audio.Player
	}

	if c.Shutdown.JoinTimeout == 0 {
		c.Shutdown.JoinTimeout = def.Shutdown.JoinTimeout
	}
}
