// Package logic contains the correction scheduler for the irrigation controller.
// This package has NO hardware, MQTT or OS dependencies. Time is injected
// through the Timer interface and a now function, so every step of a
// correction can be driven deterministically from tests.
package logic

import "time"

// Step is a state of the correction state machine.
type Step string

const (
	StepIdle         Step = "IDLE"
	StepEvaluating   Step = "EVALUATING"
	StepPumpPriming  Step = "PUMP_PRIMING"
	StepValveOpen    Step = "VALVE_OPEN"
	StepFlowing      Step = "FLOWING"
	StepValveClosing Step = "VALVE_CLOSING"
	StepPumpCooling  Step = "PUMP_COOLING"
	StepDequeuing    Step = "DEQUEUING"
)

// Hardware reports whether the step drives (or holds) actuators.
// Idle, Evaluating and Dequeuing never touch the pump or a valve.
func (s Step) Hardware() bool {
	switch s {
	case StepPumpPriming, StepValveOpen, StepFlowing, StepValveClosing, StepPumpCooling:
		return true
	}
	return false
}

// Pump is the shared water pump. Commands are fire-and-forget: failures are
// reported by the driver layer.
type Pump interface {
	On()
	Off()
}

// Valve is the solenoid valve for one channel.
type Valve interface {
	Open()
	Close()
}

// TraceSink receives observability points. It must never block.
type TraceSink interface {
	RecordPoint(traceIndex int, ts time.Time, value int)
}

// Timer schedules a single callback after a delay. Callbacks must run on the
// same goroutine that calls Scheduler methods.
type Timer interface {
	After(d time.Duration, fn func())
}

// Channel is one moisture sensor and its valve. The pump is shared by every
// channel. Channels are built once at startup and never modified.
type Channel struct {
	ID         string
	TraceIndex int
	Threshold  int // readings below this are too dry
	Valve      Valve
	Pump       Pump
}

// InRange reports whether a raw reading is wet enough to need no correction.
func (c *Channel) InRange(value int) bool {
	return value >= c.Threshold
}

// Timing holds the delays for one correction sequence.
type Timing struct {
	// HardwareCycle is the minimum gap between consecutive actuator commands.
	HardwareCycle time.Duration
	PumpWarmup    time.Duration
	PumpCooldown  time.Duration
	Flow          time.Duration
}

// CorrectionSpan is the time from PumpPriming entry to Dequeuing entry.
func (t Timing) CorrectionSpan() time.Duration {
	return t.PumpWarmup + t.HardwareCycle + t.Flow + t.HardwareCycle + t.PumpCooldown + t.HardwareCycle
}

// TraceValues are the plotted values per trace index for the off and on states.
type TraceValues struct {
	Off []int
	On  []int
}

// CorrectionRun is the in-flight processing of the channel at the head of the queue.
type CorrectionRun struct {
	ID        string
	Channel   *Channel
	Started   time.Time
	Step      Step
	Corrected bool // pump was started for this run

	cooling bool // PumpCooling hold has been scheduled
}

// Counts tracks scheduler activity since startup.
type Counts struct {
	Readings    int // read events handled
	Duplicates  int // enqueues dropped because the channel was queued or active
	Evaluations int
	Skipped     int // evaluations that found the channel back in range
	Corrections int // completed pump/valve sequences
	QueueErrors int
}

// Snapshot is a point-in-time view of the scheduler.
type Snapshot struct {
	Step          Step
	Active        bool
	ActiveChannel string
	RunID         string
	RunStarted    time.Time
	Queue         []string
	Counts        Counts
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counts
}
