package gpio

import (
	"fmt"
	"log"
	"time"
)

// PumpRelay adapts an Output to the scheduler's fire-and-forget pump commands.
// Driver errors are logged here and never reach the scheduler.
type PumpRelay struct {
	out    Output
	name   string
	logger *log.Logger
}

// NewPumpRelay wraps out. A nil logger uses log.Default().
func NewPumpRelay(out Output, name string, logger *log.Logger) *PumpRelay {
	if logger == nil {
		logger = log.Default()
	}
	return &PumpRelay{out: out, name: name, logger: logger}
}

// On starts the pump.
func (p *PumpRelay) On() {
	if err := p.out.Set(true); err != nil {
		p.logger.Printf("gpio: %s on: %v", p.name, err)
	}
}

// Off stops the pump.
func (p *PumpRelay) Off() {
	if err := p.out.Set(false); err != nil {
		p.logger.Printf("gpio: %s off: %v", p.name, err)
	}
}

// ValveRelay adapts an Output to the scheduler's valve commands.
type ValveRelay struct {
	out    Output
	name   string
	logger *log.Logger
}

// NewValveRelay wraps out. A nil logger uses log.Default().
func NewValveRelay(out Output, name string, logger *log.Logger) *ValveRelay {
	if logger == nil {
		logger = log.Default()
	}
	return &ValveRelay{out: out, name: name, logger: logger}
}

// Open energizes the solenoid.
func (v *ValveRelay) Open() {
	if err := v.out.Set(true); err != nil {
		v.logger.Printf("gpio: %s open: %v", v.name, err)
	}
}

// Close de-energizes the solenoid.
func (v *ValveRelay) Close() {
	if err := v.out.Set(false); err != nil {
		v.logger.Printf("gpio: %s close: %v", v.name, err)
	}
}

// AllOff closes every valve and then stops the pump, waiting gap between
// commands. It keeps going after a failed command and returns all failures.
func AllOff(board Board, valves int, gap time.Duration, sleep func(time.Duration)) error {
	if sleep == nil {
		sleep = time.Sleep
	}
	var errs []error
	for i := 0; i < valves; i++ {
		if err := board.Valve(i).Set(false); err != nil {
			errs = append(errs, fmt.Errorf("close valve %d: %w", i, err))
		}
		sleep(gap)
	}
	if err := board.Pump().Set(false); err != nil {
		errs = append(errs, fmt.Errorf("pump off: %w", err))
	}
	sleep(gap)

	if len(errs) > 0 {
		return fmt.Errorf("all off: %v", errs)
	}
	return nil
}
