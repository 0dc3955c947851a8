//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealChip drives actual Raspberry Pi GPIO lines over the Linux
// character-device interface.
type RealChip struct {
	chip *gpiocdev.Chip
}

func NewRealChip(name string) (*RealChip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &RealChip{chip: chip}, nil
}

func (c *RealChip) RequestOutput(offset int, name string, activeHigh bool) (Line, error) {
	initial := 0
	if !activeHigh {
		initial = 1 // de-energized rest state when polarity is inverted
	}
	line, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(initial), gpiocdev.WithConsumer(name))
	if err != nil {
		return nil, fmt.Errorf("request output line %s (offset %d): %w", name, offset, err)
	}
	return &realLine{line: line, activeHigh: activeHigh}, nil
}

func (c *RealChip) RequestInput(offset int, name string, activeHigh bool) (Line, error) {
	line, err := c.chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.WithConsumer(name))
	if err != nil {
		return nil, fmt.Errorf("request input line %s (offset %d): %w", name, offset, err)
	}
	return &realLine{line: line, activeHigh: activeHigh}, nil
}

func (c *RealChip) RequestEdgeInput(offset int, name string, activeHigh bool) (EdgeWatcher, error) {
	rl := &realLine{activeHigh: activeHigh}
	line, err := c.chip.RequestLine(offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithConsumer(name),
		gpiocdev.WithEventHandler(rl.handleEvent),
	)
	if err != nil {
		return nil, fmt.Errorf("request edge input line %s (offset %d): %w", name, offset, err)
	}
	rl.line = line
	return rl, nil
}

func (c *RealChip) Close() error {
	return c.chip.Close()
}

type realLine struct {
	line       *gpiocdev.Line
	activeHigh bool
	onEdge     func(value bool)
}

func (l *realLine) Read() (bool, error) {
	raw, err := l.line.Value()
	if err != nil {
		return false, err
	}
	return l.logical(raw), nil
}

func (l *realLine) Write(v bool) error {
	if SafeMode() {
		return nil
	}
	raw := 0
	switch {
	case l.activeHigh && v, !l.activeHigh && !v:
		raw = 1
	}
	return l.line.SetValue(raw)
}

func (l *realLine) WatchEdges(onEdge func(value bool)) error {
	l.onEdge = onEdge
	return nil
}

func (l *realLine) handleEvent(evt gpiocdev.LineEvent) {
	if l.onEdge == nil {
		return
	}
	raw := 0
	if evt.Type == gpiocdev.LineEventRisingEdge {
		raw = 1
	}
	l.onEdge(l.logical(raw))
}

func (l *realLine) logical(raw int) bool {
	if l.activeHigh {
		return raw == 1
	}
	return raw == 0
}

func (l *realLine) Close() error {
	return l.line.Close()
}
