package mqtt

import (
	"sync"

	"github.com/sweeney/irrigation-controller/internal/trace"
)

// FakePublisher records published points and events for test assertions.
// WritePoint may be called from a trace sink goroutine, so recorded points
// are read through Points().
type FakePublisher struct {
	mu       sync.Mutex
	points   []trace.Point
	payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// WriteError, if set, will be returned by WritePoint.
	WriteError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// WritePoint records the trace point.
func (f *FakePublisher) WritePoint(p trace.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}

	payload, err := FormatPointPayload(p)
	if err != nil {
		return err
	}
	f.points = append(f.points, p)
	f.payloads = append(f.payloads, payload)
	return nil
}

// Points returns a copy of the recorded trace points.
func (f *FakePublisher) Points() []trace.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]trace.Point(nil), f.points...)
}

// PointPayloads returns a copy of the recorded trace point payloads.
func (f *FakePublisher) PointPayloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.payloads...)
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded points and events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	f.points = nil
	f.payloads = nil
	f.WriteError = nil
	f.mu.Unlock()
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishSystemError = nil
	f.Connected = false
}
