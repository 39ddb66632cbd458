package logic

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Config holds the scheduler settings that do not come from the channels.
type Config struct {
	Timing      Timing
	TraceValues TraceValues

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// NewRunID returns the ID for a new CorrectionRun. Defaults to a random UUID.
	NewRunID func() string
	// Logger receives scheduler output. Defaults to log.Default().
	Logger *log.Logger
	// Debug enables per-step and duplicate-drop logging.
	Debug bool
}

// Scheduler serializes correction requests from every channel onto the shared
// pump, one channel at a time.
//
// Not safe for concurrent use: HandleReading and every Timer callback must run
// on the same goroutine.
type Scheduler struct {
	timing Timing
	values TraceValues
	timer  Timer
	sink   TraceSink
	now    func() time.Time
	newID  func() string
	logger *log.Logger
	debug  bool

	channels map[string]*Channel
	tooDry   map[string]bool // latest classification per channel
	lastRun  map[string]time.Time

	queue  *Queue
	step   Step // step the next tick performs
	active bool
	run    *CorrectionRun
	counts Counts
}

// NewScheduler creates a scheduler for the given channels.
func NewScheduler(channels []*Channel, timer Timer, sink TraceSink, cfg Config) (*Scheduler, error) {
	if timer == nil {
		return nil, errors.New("scheduler: timer is required")
	}
	if sink == nil {
		return nil, errors.New("scheduler: trace sink is required")
	}
	s := &Scheduler{
		timing:   cfg.Timing,
		values:   cfg.TraceValues,
		timer:    timer,
		sink:     sink,
		now:      cfg.Now,
		newID:    cfg.NewRunID,
		logger:   cfg.Logger,
		debug:    cfg.Debug,
		channels: make(map[string]*Channel, len(channels)),
		tooDry:   make(map[string]bool, len(channels)),
		lastRun:  make(map[string]time.Time, len(channels)),
		queue:    NewQueue(),
		step:     StepIdle,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.logger == nil {
		s.logger = log.Default()
	}

	for _, ch := range channels {
		if ch.ID == "" {
			return nil, errors.New("scheduler: channel with empty id")
		}
		if _, dup := s.channels[ch.ID]; dup {
			return nil, fmt.Errorf("scheduler: duplicate channel id %q", ch.ID)
		}
		if ch.TraceIndex < 0 || ch.TraceIndex >= len(s.values.Off) || ch.TraceIndex >= len(s.values.On) {
			return nil, fmt.Errorf("scheduler: channel %q trace index %d outside trace value tables", ch.ID, ch.TraceIndex)
		}
		if ch.Pump == nil || ch.Valve == nil {
			return nil, fmt.Errorf("scheduler: channel %q has no pump or valve", ch.ID)
		}
		s.channels[ch.ID] = ch
	}
	return s, nil
}

// HandleReading processes one periodic read event for a channel.
// inRange is the reading classification (false = too dry).
func (s *Scheduler) HandleReading(id string, inRange bool) {
	ch, ok := s.channels[id]
	if !ok {
		s.logger.Printf("scheduler: reading for unknown channel %q", id)
		return
	}
	s.counts.Readings++
	s.tooDry[id] = !inRange

	wasEmpty := s.queue.Len() == 0
	if !s.enqueue(ch) {
		return
	}
	if !s.active && wasEmpty && s.step == StepIdle {
		s.step = StepEvaluating
		s.timer.After(0, s.tick)
	}
}

func (s *Scheduler) enqueue(ch *Channel) bool {
	if s.run != nil && s.run.Channel.ID == ch.ID {
		s.counts.Duplicates++
		s.debugf("scheduler: %s already active, reading dropped", ch.ID)
		return false
	}
	if !s.queue.Enqueue(ch) {
		s.counts.Duplicates++
		s.debugf("scheduler: %s already queued, reading dropped", ch.ID)
		return false
	}
	if s.queue.Len() > 1 {
		s.debugf("scheduler: queued %s (queue length %d)", ch.ID, s.queue.Len())
	}
	return true
}

// tick performs the action of the current step. It is the only callback the
// scheduler ever hands to the Timer.
func (s *Scheduler) tick() {
	switch s.step {
	case StepEvaluating:
		s.evaluate()
	case StepValveOpen:
		s.run.Channel.Valve.Open()
		s.advance(StepFlowing, s.timing.HardwareCycle)
	case StepFlowing:
		s.advance(StepValveClosing, s.timing.Flow)
	case StepValveClosing:
		s.run.Channel.Valve.Close()
		s.advance(StepPumpCooling, s.timing.HardwareCycle)
	case StepPumpCooling:
		s.coolPump()
	case StepDequeuing:
		s.dequeue()
	default:
		s.logger.Printf("scheduler: unexpected tick in step %s", s.step)
	}
}

// advance moves the run to next and schedules the tick that performs it.
func (s *Scheduler) advance(next Step, d time.Duration) {
	s.debugf("scheduler: %s %s -> %s in %v", s.run.Channel.ID, s.step, next, d)
	s.step = next
	s.run.Step = next
	s.timer.After(d, s.tick)
}

func (s *Scheduler) evaluate() {
	head, ok := s.queue.Peek()
	if !ok {
		s.step = StepIdle
		return
	}

	now := s.now()
	s.run = &CorrectionRun{
		ID:      s.newID(),
		Channel: head,
		Started: now,
		Step:    StepEvaluating,
	}
	s.counts.Evaluations++

	// Baseline point for every evaluation, corrected or not.
	s.point(head, now, false)

	if !s.tooDry[head.ID] {
		s.counts.Skipped++
		s.active = true
		s.step = StepDequeuing
		s.run.Step = StepDequeuing
		s.dequeue()
		return
	}
	s.primePump(now)
}

func (s *Scheduler) primePump(now time.Time) {
	s.active = true
	s.step = StepPumpPriming
	s.run.Step = StepPumpPriming
	s.run.Corrected = true
	s.lastRun[s.run.Channel.ID] = now
	s.logger.Printf("scheduler: correcting %s (run %s)", s.run.Channel.ID, s.run.ID)

	s.run.Channel.Pump.On()
	s.point(s.run.Channel, now, true)
	s.advance(StepValveOpen, s.timing.PumpWarmup)
}

// coolPump holds the pump on for the cooldown, then switches it off.
func (s *Scheduler) coolPump() {
	if !s.run.cooling {
		s.run.cooling = true
		s.timer.After(s.timing.PumpCooldown, s.tick)
		return
	}

	s.run.Channel.Pump.Off()
	now := s.now()
	s.point(s.run.Channel, now, true)
	s.point(s.run.Channel, now, false)
	s.advance(StepDequeuing, s.timing.HardwareCycle)
}

func (s *Scheduler) dequeue() {
	run := s.run
	if _, err := s.queue.DequeueHead(run.Channel); err != nil {
		s.counts.QueueErrors++
		s.logger.Printf("scheduler: warning: %v", err)
	}
	if run.Corrected {
		s.counts.Corrections++
		s.logger.Printf("scheduler: correction of %s finished after %v (run %s)",
			run.Channel.ID, s.now().Sub(run.Started), run.ID)
	}

	s.active = false
	s.run = nil

	if s.queue.Len() > 0 {
		s.step = StepEvaluating
		s.timer.After(s.timing.HardwareCycle, s.tick)
		return
	}
	s.step = StepIdle
}

func (s *Scheduler) point(ch *Channel, ts time.Time, on bool) {
	v := s.values.Off[ch.TraceIndex]
	if on {
		v = s.values.On[ch.TraceIndex]
	}
	s.sink.RecordPoint(ch.TraceIndex, ts, v)
}

func (s *Scheduler) debugf(format string, args ...any) {
	if s.debug {
		s.logger.Printf(format, args...)
	}
}

// LastCorrection returns the start time of the most recent correction for the
// channel.
func (s *Scheduler) LastCorrection(id string) (time.Time, bool) {
	t, ok := s.lastRun[id]
	return t, ok
}

// Active reports whether a channel currently holds the pump.
func (s *Scheduler) Active() bool {
	return s.active
}

// Step returns the step the scheduler is in (or will perform on its next tick).
func (s *Scheduler) Step() Step {
	return s.step
}

// Snapshot returns a copy of the scheduler state.
func (s *Scheduler) Snapshot() Snapshot {
	snap := Snapshot{
		Step:   s.step,
		Active: s.active,
		Queue:  s.queue.IDs(),
		Counts: s.counts,
	}
	if s.run != nil {
		snap.ActiveChannel = s.run.Channel.ID
		snap.RunID = s.run.ID
		snap.RunStarted = s.run.Started
	}
	return snap
}
