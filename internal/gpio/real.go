//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealBoard drives actual hardware using the Linux GPIO character device.
type RealBoard struct {
	chip    *gpiocdev.Chip
	sensors []*gpiocdev.Line
	valves  []*lineOutput
	pump    *lineOutput
}

// lineOutput is a relay line. Polarity is handled by the kernel (AsActiveLow),
// so 1 always means energized.
type lineOutput struct {
	line *gpiocdev.Line
}

func (o *lineOutput) Set(active bool) error {
	v := 0
	if active {
		v = 1
	}
	return o.line.SetValue(v)
}

// NewRealBoard requests every configured line. Relays start de-energized.
func NewRealBoard(pins Pins) (*RealBoard, error) {
	if len(pins.Sensors) != len(pins.Valves) {
		return nil, fmt.Errorf("gpio: %d sensors but %d valves", len(pins.Sensors), len(pins.Valves))
	}
	chipName := pins.Chip
	if chipName == "" {
		chipName = DefaultChip
	}

	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	b := &RealBoard{chip: chip}

	// Sensor modules drive their output; pull-down matches Pi boot defaults
	// when a module is unplugged.
	sensorOpts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullDown}
	if pins.SensorActiveLow {
		sensorOpts = append(sensorOpts, gpiocdev.AsActiveLow)
	}
	for _, pin := range pins.Sensors {
		line, err := chip.RequestLine(pin, sensorOpts...)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request sensor pin %d: %w", pin, err)
		}
		b.sensors = append(b.sensors, line)
	}

	relayOpts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if pins.RelayActiveLow {
		relayOpts = append(relayOpts, gpiocdev.AsActiveLow)
	}
	for _, pin := range pins.Valves {
		line, err := chip.RequestLine(pin, relayOpts...)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request valve pin %d: %w", pin, err)
		}
		b.valves = append(b.valves, &lineOutput{line: line})
	}

	line, err := chip.RequestLine(pins.Pump, relayOpts...)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("request pump pin %d: %w", pins.Pump, err)
	}
	b.pump = &lineOutput{line: line}

	return b, nil
}

// Read returns FullScale for every sensor reporting wet soil and 0 for dry.
func (b *RealBoard) Read() ([]int, error) {
	values := make([]int, len(b.sensors))
	for i, line := range b.sensors {
		v, err := line.Value()
		if err != nil {
			return nil, fmt.Errorf("read sensor %d: %w", i, err)
		}
		values[i] = v * FullScale
	}
	return values, nil
}

// Pump returns the pump relay.
func (b *RealBoard) Pump() Output {
	return b.pump
}

// Valve returns the valve relay paired with sensor i.
func (b *RealBoard) Valve(i int) Output {
	return b.valves[i]
}

// Close de-energizes every relay, then releases the lines.
// Sensor lines are reconfigured to input with pull-down (Pi boot defaults)
// before closing.
func (b *RealBoard) Close() error {
	var errs []error

	for i, v := range b.valves {
		if err := v.Set(false); err != nil {
			errs = append(errs, fmt.Errorf("close valve %d: %w", i, err))
		}
		if err := v.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release valve %d: %w", i, err))
		}
	}
	if b.pump != nil {
		if err := b.pump.Set(false); err != nil {
			errs = append(errs, fmt.Errorf("pump off: %w", err))
		}
		if err := b.pump.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release pump: %w", err))
		}
	}
	for i, line := range b.sensors {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure sensor %d: %w", i, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release sensor %d: %w", i, err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
