// Package status provides a thread-safe view of the controller for the HTTP
// server, heartbeats and metrics. The run loop writes; everything else reads.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains controller configuration for display.
type Config struct {
	SensorPeriod  time.Duration
	BlockTime     time.Duration
	FlowTime      time.Duration
	HardwareCycle time.Duration
	Heartbeat     time.Duration
	TraceBackend  string
	Broker        string
	HTTPAddr      string
}

// ChannelStatus is the latest reading of one channel.
type ChannelStatus struct {
	ID             string
	Value          int
	InRange        bool
	Read           bool      // at least one reading has been taken
	LastCorrection time.Time // zero if never corrected
}

// TraceStats counts trace points that did not reach the backend.
type TraceStats struct {
	Dropped int64
	Failed  int64
}

// Snapshot is a point-in-time view of controller state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Scheduler     logic.Snapshot
	Channels      []ChannelStatus
	Trace         TraceStats
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable controller state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update records the scheduler state and the latest channel readings.
// Called from the run loop after every sensor tick and timer callback.
func (t *Tracker) Update(sched logic.Snapshot, channels []ChannelStatus) {
	sched.Queue = append([]string(nil), sched.Queue...)
	channels = append([]ChannelStatus(nil), channels...)

	t.mu.Lock()
	t.snap.Scheduler = sched
	t.snap.Channels = channels
	t.mu.Unlock()
}

// SetTraceStats records trace sink drop/failure counts.
func (t *Tracker) SetTraceStats(stats TraceStats) {
	t.mu.Lock()
	t.snap.Trace = stats
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the controller state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
