package logic

import "time"

// FakeTimer is a Timer driven by a virtual clock. Callbacks only run when the
// test calls Step, Advance or RunUntilIdle.
type FakeTimer struct {
	now     time.Time
	seq     int
	pending []fakeTimerEntry

	// Delays records every delay passed to After, in call order.
	Delays []time.Duration
}

type fakeTimerEntry struct {
	at  time.Time
	seq int
	fn  func()
}

// NewFakeTimer creates a FakeTimer whose clock starts at start.
func NewFakeTimer(start time.Time) *FakeTimer {
	return &FakeTimer{now: start}
}

// Now returns the virtual time.
func (f *FakeTimer) Now() time.Time {
	return f.now
}

// After schedules fn at now+d.
func (f *FakeTimer) After(d time.Duration, fn func()) {
	f.Delays = append(f.Delays, d)
	f.seq++
	f.pending = append(f.pending, fakeTimerEntry{at: f.now.Add(d), seq: f.seq, fn: fn})
}

// Pending returns the number of scheduled callbacks that have not fired.
func (f *FakeTimer) Pending() int {
	return len(f.pending)
}

// Step fires the earliest pending callback, moving the clock to its due time.
// Callbacks due at the same time fire in scheduling order.
// Returns false if nothing is pending.
func (f *FakeTimer) Step() bool {
	if len(f.pending) == 0 {
		return false
	}
	next := 0
	for i, e := range f.pending[1:] {
		n := f.pending[next]
		if e.at.Before(n.at) || (e.at.Equal(n.at) && e.seq < n.seq) {
			next = i + 1
		}
	}
	e := f.pending[next]
	f.pending = append(f.pending[:next], f.pending[next+1:]...)
	if e.at.After(f.now) {
		f.now = e.at
	}
	e.fn()
	return true
}

// Advance fires every callback due within d of now, then moves the clock to now+d.
func (f *FakeTimer) Advance(d time.Duration) {
	end := f.now.Add(d)
	for {
		due := false
		for _, e := range f.pending {
			if !e.at.After(end) {
				due = true
				break
			}
		}
		if !due {
			break
		}
		f.Step()
	}
	f.now = end
}

// RunUntilIdle fires callbacks until none are pending. It stops after limit
// callbacks to protect tests from a scheduler that never settles, and
// returns the number fired.
func (f *FakeTimer) RunUntilIdle(limit int) int {
	n := 0
	for n < limit && f.Step() {
		n++
	}
	return n
}

// TracePoint is a point recorded by FakeSink.
type TracePoint struct {
	TraceIndex int
	Time       time.Time
	Value      int
}

// FakeSink records trace points for test assertions.
type FakeSink struct {
	Points []TracePoint
}

// RecordPoint records the point.
func (f *FakeSink) RecordPoint(traceIndex int, ts time.Time, value int) {
	f.Points = append(f.Points, TracePoint{TraceIndex: traceIndex, Time: ts, Value: value})
}

// Command is one actuator command seen by a Recorder.
type Command struct {
	Time   time.Time
	Device string
	Action string // "on", "off", "open", "close"
}

// Recorder records pump and valve commands with the time they were issued.
type Recorder struct {
	now      func() time.Time
	Commands []Command
}

// NewRecorder creates a Recorder that stamps commands using now.
func NewRecorder(now func() time.Time) *Recorder {
	return &Recorder{now: now}
}

func (r *Recorder) record(device, action string) {
	r.Commands = append(r.Commands, Command{Time: r.now(), Device: device, Action: action})
}

// Pump returns a Pump that records to r under the given device name.
func (r *Recorder) Pump(name string) Pump {
	return fakePump{r: r, name: name}
}

// Valve returns a Valve that records to r under the given device name.
func (r *Recorder) Valve(name string) Valve {
	return fakeValve{r: r, name: name}
}

type fakePump struct {
	r    *Recorder
	name string
}

func (p fakePump) On()  { p.r.record(p.name, "on") }
func (p fakePump) Off() { p.r.record(p.name, "off") }

type fakeValve struct {
	r    *Recorder
	name string
}

func (v fakeValve) Open()  { v.r.record(v.name, "open") }
func (v fakeValve) Close() { v.r.record(v.name, "close") }
