// Package mqtt publishes trace points and system events to an MQTT broker,
// with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/sweeney/irrigation-controller/internal/trace"
)

// TopicTrace is the prefix for trace point topics. Each trace index gets its
// own subtopic: garden/irrigation/trace/<index>.
const TopicTrace = "garden/irrigation/trace"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "garden/irrigation/system"

// Publisher publishes trace points and system events to MQTT.
// It satisfies trace.Writer so it can back a trace.Sink.
type Publisher interface {
	// WritePoint sends one trace point. Called from the trace sink goroutine.
	WritePoint(p trace.Point) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// TraceTopic returns the topic a trace index publishes to.
func TraceTopic(index int) string {
	return TopicTrace + "/" + strconv.Itoa(index)
}

// PointPayload is the MQTT message payload for a trace point.
type PointPayload struct {
	Trace     int    `json:"trace"`
	Timestamp string `json:"timestamp"`
	Value     int    `json:"value"`
}

// FormatPointPayload creates the JSON payload for a trace point.
// Timestamps keep millisecond precision; pump on/off points are often less
// than a second apart.
func FormatPointPayload(p trace.Point) ([]byte, error) {
	return json.Marshal(PointPayload{
		Trace:     p.Trace,
		Timestamp: p.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Value:     p.Value,
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
