package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Step          string        `json:"step"`
	Active        *ActiveJSON   `json:"active,omitempty"`
	Queue         []string      `json:"queue"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Counts        CountsJSON    `json:"counts"`
	Channels      []ChannelJSON `json:"channels"`
	Trace         TraceJSON     `json:"trace"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// ActiveJSON describes the channel currently being processed.
type ActiveJSON struct {
	Channel string `json:"channel"`
	RunID   string `json:"run_id"`
	Started string `json:"started"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of scheduler counts.
type CountsJSON struct {
	Readings    int `json:"readings"`
	Duplicates  int `json:"duplicates"`
	Evaluations int `json:"evaluations"`
	Skipped     int `json:"skipped"`
	Corrections int `json:"corrections"`
	QueueErrors int `json:"queue_errors"`
}

// ChannelJSON is the JSON representation of one channel's latest reading.
type ChannelJSON struct {
	ID             string `json:"id"`
	Value          *int   `json:"value"`
	InRange        bool   `json:"in_range"`
	LastCorrection string `json:"last_correction,omitempty"`
}

// TraceJSON reports trace points lost before reaching the backend.
type TraceJSON struct {
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of controller config.
type ConfigJSON struct {
	SensorPeriodMs  int64  `json:"sensor_period_ms"`
	BlockTimeMs     int64  `json:"block_time_ms"`
	FlowTimeMs      int64  `json:"flow_time_ms"`
	HardwareCycleMs int64  `json:"hardware_cycle_ms"`
	HeartbeatMs     int64  `json:"heartbeat_ms"`
	TraceBackend    string `json:"trace_backend"`
	Broker          string `json:"broker"`
	HTTPAddr        string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	sched := snap.Scheduler
	step := string(sched.Step)
	if step == "" {
		step = "UNKNOWN"
	}
	queue := sched.Queue
	if queue == nil {
		queue = []string{}
	}

	inner := StatusInner{
		Step:          step,
		Queue:         queue,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Readings:    sched.Counts.Readings,
			Duplicates:  sched.Counts.Duplicates,
			Evaluations: sched.Counts.Evaluations,
			Skipped:     sched.Counts.Skipped,
			Corrections: sched.Counts.Corrections,
			QueueErrors: sched.Counts.QueueErrors,
		},
		Channels: make([]ChannelJSON, 0, len(snap.Channels)),
		Trace:    TraceJSON{Dropped: snap.Trace.Dropped, Failed: snap.Trace.Failed},
		Config: ConfigJSON{
			SensorPeriodMs:  snap.Config.SensorPeriod.Milliseconds(),
			BlockTimeMs:     snap.Config.BlockTime.Milliseconds(),
			FlowTimeMs:      snap.Config.FlowTime.Milliseconds(),
			HardwareCycleMs: snap.Config.HardwareCycle.Milliseconds(),
			HeartbeatMs:     snap.Config.Heartbeat.Milliseconds(),
			TraceBackend:    snap.Config.TraceBackend,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
		},
	}

	if sched.Active {
		inner.Active = &ActiveJSON{
			Channel: sched.ActiveChannel,
			RunID:   sched.RunID,
			Started: sched.RunStarted.UTC().Format(time.RFC3339),
		}
	}

	for _, ch := range snap.Channels {
		cj := ChannelJSON{ID: ch.ID, InRange: ch.InRange}
		if ch.Read {
			v := ch.Value
			cj.Value = &v
		}
		if !ch.LastCorrection.IsZero() {
			cj.LastCorrection = ch.LastCorrection.UTC().Format(time.RFC3339)
		}
		inner.Channels = append(inner.Channels, cj)
	}

	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
