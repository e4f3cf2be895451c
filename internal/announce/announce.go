// Package announce provides the appliance's user feedback: chime pulses on
// a GPIO line and spoken pH results played through an external audio player.
package announce

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sweeney/ph-sensor/internal/gpio"
)

// Chime drives a buzzer line. Pulses block the calling goroutine for their
// duration, so chimes belong on the button coordinator's goroutine, never
// in an edge handler.
type Chime struct {
	lines gpio.Lines
	pin   int
	sleep func(time.Duration)
}

// NewChime claims the chime pin as an output, initially off.
func NewChime(lines gpio.Lines, pin int) (*Chime, error) {
	if err := lines.Output(pin, 0); err != nil {
		return nil, fmt.Errorf("claim chime pin %d: %w", pin, err)
	}
	return &Chime{lines: lines, pin: pin, sleep: time.Sleep}, nil
}

// Long sounds a single long chime (startup).
func (c *Chime) Long() error {
	return c.pulse(500 * time.Millisecond)
}

// Short sounds a single short chime (narrow-scale press).
func (c *Chime) Short() error {
	return c.pulse(200 * time.Millisecond)
}

// DoubleShort sounds two short chimes (wide-scale press).
func (c *Chime) DoubleShort() error {
	if err := c.pulse(200 * time.Millisecond); err != nil {
		return err
	}
	c.sleep(400 * time.Millisecond)
	return c.pulse(200 * time.Millisecond)
}

func (c *Chime) pulse(d time.Duration) error {
	if err := c.lines.Write(c.pin, 1); err != nil {
		return err
	}
	c.sleep(d)
	return c.lines.Write(c.pin, 0)
}

// Player announces a pH value by running an external audio player on
// <dir>/<ph>.mp3. The filename match is case-insensitive.
type Player struct {
	Dir     string
	Command string

	// run is swapped out in tests.
	run func(command, path string) error
}

// NewPlayer creates a Player using the given audio directory and player
// binary (e.g. "omxplayer").
func NewPlayer(dir, command string) *Player {
	return &Player{
		Dir:     dir,
		Command: command,
		run: func(command, path string) error {
			return exec.Command(command, path).Run()
		},
	}
}

// Play announces ph. Failures, including a missing audio file, are
// returned for the caller to log; they are non-fatal.
func (p *Player) Play(ph string) error {
	path, err := p.resolve(ph)
	if err != nil {
		return err
	}
	if err := p.run(p.Command, path); err != nil {
		return fmt.Errorf("play %s: %w", path, err)
	}
	return nil
}

// resolve finds the audio file for ph, matching the filename
// case-insensitively.
func (p *Player) resolve(ph string) (string, error) {
	want := strings.ToLower(ph + ".mp3")
	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		return "", fmt.Errorf("read audio dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.ToLower(e.Name()) == want {
			return filepath.Join(p.Dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no audio file for pH %s in %s", ph, p.Dir)
}
