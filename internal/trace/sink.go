package trace

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuffer is the number of points a Sink holds before dropping.
const DefaultBuffer = 64

// Point is one timestamped trace value.
type Point struct {
	Trace int
	Time  time.Time
	Value int
}

// Writer delivers points to a backend. WritePoint may block; the Sink calls
// it from its own goroutine.
type Writer interface {
	WritePoint(p Point) error
}

// Sink hands points to a Writer on a background goroutine so the caller never
// blocks. Points recorded before setup is finalized, or while the buffer is
// full, are dropped and logged.
type Sink struct {
	*Lifecycle

	w       Writer
	logger  *log.Logger
	points  chan Point
	done    chan struct{}
	dropped atomic.Int64
	failed  atomic.Int64

	mu     sync.Mutex
	closed bool
}

// NewSink starts a Sink writing to w. buffer <= 0 uses DefaultBuffer.
func NewSink(w Writer, lc *Lifecycle, buffer int, logger *log.Logger) *Sink {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Sink{
		Lifecycle: lc,
		w:         w,
		logger:    logger,
		points:    make(chan Point, buffer),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Sink) run() {
	defer close(s.done)
	for p := range s.points {
		if err := s.w.WritePoint(p); err != nil {
			s.failed.Add(1)
			s.logger.Printf("trace: write point for trace %d: %v", p.Trace, err)
		}
	}
}

// RecordPoint queues a point for the writer. It never blocks.
func (s *Sink) RecordPoint(traceIndex int, ts time.Time, value int) {
	if !s.Ready() {
		s.dropped.Add(1)
		s.logger.Printf("trace: point for trace %d dropped, setup not finalized", traceIndex)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.points <- Point{Trace: traceIndex, Time: ts, Value: value}:
	default:
		if s.dropped.Add(1) == 1 {
			s.logger.Printf("trace: buffer full (%d points), dropping", cap(s.points))
		}
	}
}

// Dropped returns the number of points that never reached the writer queue.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// Failed returns the number of points the writer rejected.
func (s *Sink) Failed() int64 {
	return s.failed.Load()
}

// Close stops accepting points and waits for queued points to be written.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.points)
	s.mu.Unlock()

	<-s.done
	return nil
}
