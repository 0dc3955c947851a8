//go:build !linux

package gpio

import "errors"

// RealChip is not available on non-Linux platforms.
type RealChip struct{}

func NewRealChip(name string) (*RealChip, error) {
	return nil, errors.New("gpio: real chip requires Linux")
}

func (c *RealChip) RequestOutput(offset int, name string, activeHigh bool) (Line, error) {
	return nil, errors.New("gpio: not supported on this platform")
}

func (c *RealChip) RequestInput(offset int, name string, activeHigh bool) (Line, error) {
	return nil, errors.New("gpio: not supported on this platform")
}

func (c *RealChip) RequestEdgeInput(offset int, name string, activeHigh bool) (EdgeWatcher, error) {
	return nil, errors.New("gpio: not supported on this platform")
}

func (c *RealChip) Close() error {
	return nil
}
