// Package gpio provides moisture sensor inputs and relay outputs with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Board is the controller's physical I/O: one input per moisture sensor, one
// relay output per valve and a relay output for the shared pump.
type Board interface {
	// Read returns the current reading of every sensor, in configuration order.
	Read() ([]int, error)

	// Pump returns the pump relay.
	Pump() Output

	// Valve returns the valve relay paired with sensor i.
	Valve(i int) Output

	// Close switches every relay off and releases GPIO resources.
	Close() error
}

// Output drives one relay. active=true energizes the relay: the pump relay is
// normally open (energized = running), the valve relays drive normally closed
// solenoids (energized = open).
type Output interface {
	Set(active bool) error
}

// FullScale is the reading reported by a digital sensor input showing wet soil.
// A dry input reads 0.
const FullScale = 1023

// DefaultChip is the GPIO chip on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Pins describes how the board is wired (BCM numbering).
type Pins struct {
	Chip    string
	Pump    int
	Sensors []int
	Valves  []int // Valves[i] is paired with Sensors[i]

	// RelayActiveLow is set for relay boards that energize on a low output.
	RelayActiveLow bool
	// SensorActiveLow is set for sensor modules that pull their output low on wet soil.
	SensorActiveLow bool
}
