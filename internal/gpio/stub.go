//go:build !linux

package gpio

import "errors"

// RealLines is not available on non-Linux platforms.
type RealLines struct{}

// NewRealLines returns an error on non-Linux platforms.
func NewRealLines(chip string) (*RealLines, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Watch is not implemented on non-Linux platforms.
func (r *RealLines) Watch(pin int, cfg WatchConfig, h Handler) error {
	return errors.New("gpio: not supported")
}

// Output is not implemented on non-Linux platforms.
func (r *RealLines) Output(pin int, initial int) error {
	return errors.New("gpio: not supported")
}

// Write is not implemented on non-Linux platforms.
func (r *RealLines) Write(pin int, value int) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealLines) Close() error {
	return nil
}
