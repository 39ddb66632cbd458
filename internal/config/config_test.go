package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimal = `
hardware:
  pump_pin: 5
channels:
  - id: tomatoes
    sensor_pin: 17
    valve_pin: 8
  - id: peppers
    sensor_pin: 27
    valve_pin: 4
`

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Process.SensorPeriod != 10*time.Second {
		t.Errorf("SensorPeriod: got %v, want 10s", cfg.Process.SensorPeriod)
	}
	if cfg.Process.BlockTime != 110*time.Second {
		t.Errorf("BlockTime: got %v, want 110s", cfg.Process.BlockTime)
	}
	if *cfg.Process.DryLimit != 700 {
		t.Errorf("DryLimit: got %d, want 700", *cfg.Process.DryLimit)
	}
	if cfg.Process.PumpCooldown != 500*time.Millisecond {
		t.Errorf("PumpCooldown: got %v, want 500ms", cfg.Process.PumpCooldown)
	}
	if cfg.Hardware.Chip != "gpiochip0" {
		t.Errorf("Chip: got %s, want gpiochip0", cfg.Hardware.Chip)
	}
	if cfg.Trace.Backend != BackendMQTT {
		t.Errorf("Backend: got %s, want mqtt", cfg.Trace.Backend)
	}
	if cfg.Channels[1].ValveName != "solenoid 2" {
		t.Errorf("ValveName: got %q, want %q", cfg.Channels[1].ValveName, "solenoid 2")
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("Broker: got %s", cfg.MQTT.Broker)
	}
	if cfg.Heartbeat != 15*time.Minute {
		t.Errorf("Heartbeat: got %v, want 15m", cfg.Heartbeat)
	}
}

func TestLoadParsesDurationsAndOverrides(t *testing.T) {
	data := `
process:
  sensor_period: 250ms
  block_time: 2m
  dry_limit: 600
  pump_warmup: 1500ms
  flow_time: 4s
  hardware_cycle_time: 250ms
hardware:
  pump_pin: 5
  relay_active_low: true
channels:
  - id: tomatoes
    sensor_pin: 17
    valve_pin: 8
    dry_limit: 900
  - id: peppers
    sensor_pin: 27
    valve_pin: 4
trace:
  backend: console
`
	cfg, err := Load(writeConfig(t, data))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	timing := cfg.Timing()
	if timing.PumpWarmup != 1500*time.Millisecond || timing.Flow != 4*time.Second || timing.HardwareCycle != 250*time.Millisecond {
		t.Errorf("timing: got %+v", timing)
	}
	if got := cfg.Threshold(0); got != 900 {
		t.Errorf("Threshold(0): got %d, want 900", got)
	}
	if got := cfg.Threshold(1); got != 600 {
		t.Errorf("Threshold(1): got %d, want 600", got)
	}

	pins := cfg.Pins()
	if !pins.RelayActiveLow || pins.Pump != 5 {
		t.Errorf("pins: got %+v", pins)
	}
	if len(pins.Sensors) != 2 || pins.Sensors[1] != 27 || pins.Valves[0] != 8 {
		t.Errorf("channel pins: sensors %v valves %v", pins.Sensors, pins.Valves)
	}
}

func TestLoadZeroDryLimitIsKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, "process:\n  dry_limit: 0\n"+minimal))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if *cfg.Process.DryLimit != 0 {
		t.Errorf("DryLimit: got %d, want 0", *cfg.Process.DryLimit)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "channels: [")); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{
			name: "sensor period too short",
			data: "process:\n  sensor_period: 5ms\n" + minimal,
			want: "sensor_period",
		},
		{
			name: "dry limit above full scale",
			data: "process:\n  dry_limit: 2000\n" + minimal,
			want: "dry_limit",
		},
		{
			name: "block time not longer than sensor period",
			data: "process:\n  sensor_period: 2m\n  block_time: 1m\n" + minimal,
			want: "longer than sensor_period",
		},
		{
			name: "block time shorter than a correction",
			data: "process:\n  sensor_period: 1s\n  block_time: 5s\n" + minimal,
			want: "shorter than one correction",
		},
		{
			name: "negative flow time",
			data: "process:\n  flow_time: -1s\n" + minimal,
			want: "flow_time",
		},
		{
			name: "no channels",
			data: "hardware:\n  pump_pin: 5\n",
			want: "at least one channel",
		},
		{
			name: "empty id",
			data: "channels:\n  - sensor_pin: 17\n    valve_pin: 8\n",
			want: "id is required",
		},
		{
			name: "duplicate id",
			data: "channels:\n  - id: a\n    sensor_pin: 17\n    valve_pin: 8\n  - id: a\n    sensor_pin: 27\n    valve_pin: 4\n",
			want: "duplicate id",
		},
		{
			name: "pin shared with pump",
			data: "hardware:\n  pump_pin: 8\nchannels:\n  - id: a\n    sensor_pin: 17\n    valve_pin: 8\n",
			want: "already used by pump",
		},
		{
			name: "more channels than trace values",
			data: "trace:\n  off: [0]\n  on: [1]\n" + minimal,
			want: "trace index 1",
		},
		{
			name: "unknown backend",
			data: "trace:\n  backend: plotly\n" + minimal,
			want: "trace.backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.data))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error: got %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestValidateAfterOverride(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.MQTT.Broker = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty broker with mqtt backend")
	}
	cfg.Trace.Backend = BackendNone
	if err := cfg.Validate(); err != nil {
		t.Errorf("none backend should not need a broker: %v", err)
	}
}
