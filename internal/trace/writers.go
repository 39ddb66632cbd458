package trace

import (
	"log"
	"sync"
)

// ConsoleWriter logs every point as a single line.
type ConsoleWriter struct {
	logger *log.Logger
}

// NewConsoleWriter creates a ConsoleWriter. A nil logger uses log.Default().
func NewConsoleWriter(logger *log.Logger) *ConsoleWriter {
	if logger == nil {
		logger = log.Default()
	}
	return &ConsoleWriter{logger: logger}
}

// WritePoint logs the point.
func (c *ConsoleWriter) WritePoint(p Point) error {
	c.logger.Printf("trace: %d data: %s %d", p.Trace, p.Time.UTC().Format("2006-01-02T15:04:05.000Z"), p.Value)
	return nil
}

// NullWriter discards every point.
type NullWriter struct{}

// WritePoint does nothing.
func (NullWriter) WritePoint(Point) error { return nil }

// FakeWriter records points for test assertions.
type FakeWriter struct {
	mu     sync.Mutex
	points []Point

	// WriteError, if set, is returned by WritePoint.
	WriteError error
}

// WritePoint records the point.
func (f *FakeWriter) WritePoint(p Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.points = append(f.points, p)
	return nil
}

// Points returns a copy of the recorded points.
func (f *FakeWriter) Points() []Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Point(nil), f.points...)
}
