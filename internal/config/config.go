// Package config loads the controller's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/irrigation-controller/internal/gpio"
	"github.com/sweeney/irrigation-controller/internal/logic"
)

// MinSensorPeriod is the shortest allowed time between sensor reads.
const MinSensorPeriod = 10 * time.Millisecond

// Trace backends.
const (
	BackendMQTT    = "mqtt"
	BackendConsole = "console"
	BackendNone    = "none"
)

type Config struct {
	Process   ProcessConfig   `yaml:"process"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Channels  []ChannelConfig `yaml:"channels"`
	Trace     TraceConfig     `yaml:"trace"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http"`
	Heartbeat time.Duration   `yaml:"heartbeat"`
}

// ProcessConfig holds the correction timing and limits.
type ProcessConfig struct {
	SensorPeriod      time.Duration `yaml:"sensor_period"`
	BlockTime         time.Duration `yaml:"block_time"`
	DryLimit          *int          `yaml:"dry_limit"`
	PumpWarmup        time.Duration `yaml:"pump_warmup"`
	PumpCooldown      time.Duration `yaml:"pump_cooldown"`
	FlowTime          time.Duration `yaml:"flow_time"`
	HardwareCycleTime time.Duration `yaml:"hardware_cycle_time"`
}

type HardwareConfig struct {
	Chip            string `yaml:"chip"`
	PumpPin         int    `yaml:"pump_pin"`
	RelayActiveLow  bool   `yaml:"relay_active_low"`
	SensorActiveLow bool   `yaml:"sensor_active_low"`
}

// ChannelConfig pairs one moisture sensor with the valve that waters it.
// The channel's trace index is its position in the list.
type ChannelConfig struct {
	ID        string `yaml:"id"`
	SensorPin int    `yaml:"sensor_pin"`
	ValvePin  int    `yaml:"valve_pin"`
	ValveName string `yaml:"valve_name"`
	DryLimit  *int   `yaml:"dry_limit"` // overrides process.dry_limit
}

type TraceConfig struct {
	Backend string `yaml:"backend"`
	Off     []int  `yaml:"off"`
	On      []int  `yaml:"on"`
	Buffer  int    `yaml:"buffer"`
}

type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	BufferSize int    `yaml:"buffer_size"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the status server
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func intPtr(v int) *int { return &v }

func (c *Config) applyDefaults() {
	p := &c.Process
	if p.SensorPeriod == 0 {
		p.SensorPeriod = 10 * time.Second
	}
	if p.BlockTime == 0 {
		p.BlockTime = 110 * time.Second
	}
	if p.DryLimit == nil {
		p.DryLimit = intPtr(700)
	}
	if p.PumpWarmup == 0 {
		p.PumpWarmup = time.Second
	}
	if p.PumpCooldown == 0 {
		p.PumpCooldown = 500 * time.Millisecond
	}
	if p.FlowTime == 0 {
		p.FlowTime = 8 * time.Second
	}
	if p.HardwareCycleTime == 0 {
		p.HardwareCycleTime = time.Second
	}

	if c.Hardware.Chip == "" {
		c.Hardware.Chip = gpio.DefaultChip
	}
	for i := range c.Channels {
		ch := &c.Channels[i]
		if ch.ValveName == "" {
			ch.ValveName = fmt.Sprintf("solenoid %d", i+1)
		}
	}

	if c.Trace.Backend == "" {
		c.Trace.Backend = BackendMQTT
	}
	if len(c.Trace.Off) == 0 {
		c.Trace.Off = []int{0, 2, 4, 6, 8, 10}
	}
	if len(c.Trace.On) == 0 {
		c.Trace.On = []int{1, 3, 5, 7, 9, 11}
	}
	if c.Trace.Buffer == 0 {
		c.Trace.Buffer = 64
	}

	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "irrigation-controller"
	}
	if c.MQTT.BufferSize == 0 {
		c.MQTT.BufferSize = 256
	}
	if c.Heartbeat == 0 {
		c.Heartbeat = 15 * time.Minute
	}
}

// Validate checks the configuration. Load calls it after applying defaults;
// callers that change fields afterwards (command-line overrides) call it again.
func (c *Config) Validate() error {
	p := c.Process
	if p.SensorPeriod < MinSensorPeriod {
		return fmt.Errorf("process.sensor_period %v is below the %v minimum", p.SensorPeriod, MinSensorPeriod)
	}
	for name, d := range map[string]time.Duration{
		"process.pump_warmup":         p.PumpWarmup,
		"process.pump_cooldown":       p.PumpCooldown,
		"process.flow_time":           p.FlowTime,
		"process.hardware_cycle_time": p.HardwareCycleTime,
		"heartbeat":                   c.Heartbeat,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if err := checkLimit("process.dry_limit", *p.DryLimit); err != nil {
		return err
	}
	if p.BlockTime <= p.SensorPeriod {
		return fmt.Errorf("process.block_time %v must be longer than sensor_period %v", p.BlockTime, p.SensorPeriod)
	}
	if span := c.Timing().CorrectionSpan(); p.BlockTime < span {
		return fmt.Errorf("process.block_time %v is shorter than one correction (%v)", p.BlockTime, span)
	}

	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	ids := make(map[string]bool)
	pins := map[int]string{c.Hardware.PumpPin: "pump"}
	for i, ch := range c.Channels {
		if ch.ID == "" {
			return fmt.Errorf("channels[%d]: id is required", i)
		}
		if ids[ch.ID] {
			return fmt.Errorf("channels[%d]: duplicate id %q", i, ch.ID)
		}
		ids[ch.ID] = true

		for _, pin := range []int{ch.SensorPin, ch.ValvePin} {
			if owner, ok := pins[pin]; ok {
				return fmt.Errorf("channel %q: pin %d already used by %s", ch.ID, pin, owner)
			}
			pins[pin] = "channel " + ch.ID
		}

		if ch.DryLimit != nil {
			if err := checkLimit(fmt.Sprintf("channel %q dry_limit", ch.ID), *ch.DryLimit); err != nil {
				return err
			}
		}
		if i >= len(c.Trace.Off) || i >= len(c.Trace.On) {
			return fmt.Errorf("channel %q: trace index %d outside trace value tables", ch.ID, i)
		}
	}

	switch c.Trace.Backend {
	case BackendMQTT:
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required for the mqtt trace backend")
		}
	case BackendConsole, BackendNone:
	default:
		return fmt.Errorf("trace.backend %q: must be one of mqtt, console, none", c.Trace.Backend)
	}
	return nil
}

func checkLimit(name string, v int) error {
	if v < 0 || v > gpio.FullScale {
		return fmt.Errorf("%s %d outside 0..%d", name, v, gpio.FullScale)
	}
	return nil
}

// Timing returns the scheduler timing.
func (c *Config) Timing() logic.Timing {
	return logic.Timing{
		HardwareCycle: c.Process.HardwareCycleTime,
		PumpWarmup:    c.Process.PumpWarmup,
		PumpCooldown:  c.Process.PumpCooldown,
		Flow:          c.Process.FlowTime,
	}
}

// TraceValues returns the trace on/off tables.
func (c *Config) TraceValues() logic.TraceValues {
	return logic.TraceValues{Off: c.Trace.Off, On: c.Trace.On}
}

// Threshold returns the dry limit for channel i.
func (c *Config) Threshold(i int) int {
	if l := c.Channels[i].DryLimit; l != nil {
		return *l
	}
	return *c.Process.DryLimit
}

// Pins returns the GPIO wiring.
func (c *Config) Pins() gpio.Pins {
	pins := gpio.Pins{
		Chip:            c.Hardware.Chip,
		Pump:            c.Hardware.PumpPin,
		RelayActiveLow:  c.Hardware.RelayActiveLow,
		SensorActiveLow: c.Hardware.SensorActiveLow,
	}
	for _, ch := range c.Channels {
		pins.Sensors = append(pins.Sensors, ch.SensorPin)
		pins.Valves = append(pins.Valves, ch.ValvePin)
	}
	return pins
}
