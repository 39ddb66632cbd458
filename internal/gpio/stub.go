//go:build !linux

package gpio

import "errors"

// RealBoard is not available on non-Linux platforms.
type RealBoard struct{}

// NewRealBoard returns an error on non-Linux platforms.
func NewRealBoard(pins Pins) (*RealBoard, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (b *RealBoard) Read() ([]int, error) {
	return nil, errors.New("gpio: not supported")
}

// Pump is not implemented on non-Linux platforms.
func (b *RealBoard) Pump() Output {
	return unsupported{}
}

// Valve is not implemented on non-Linux platforms.
func (b *RealBoard) Valve(i int) Output {
	return unsupported{}
}

// Close is not implemented on non-Linux platforms.
func (b *RealBoard) Close() error {
	return nil
}

type unsupported struct{}

func (unsupported) Set(bool) error {
	return errors.New("gpio: not supported")
}
