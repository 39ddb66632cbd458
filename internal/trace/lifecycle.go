// Package trace carries observability points from the scheduler to a backend
// (MQTT, console or nothing) without ever blocking the scheduler.
package trace

import (
	"errors"
	"fmt"
	"sync"
)

// Setup contract violations. These are programmer errors: the caller is
// expected to abort.
var (
	ErrDoubleInit      = errors.New("trace: can not initialize logging multiple times")
	ErrNilCallback     = errors.New("trace: init callback must not be nil")
	ErrNotInitialized  = errors.New("trace: init must be called first")
	ErrSetupComplete   = errors.New("trace: setup already finalized")
	ErrDoubleFinalize  = errors.New("trace: can not finalize setup multiple times")
	ErrNoBoard         = errors.New("trace: finalize called before any board added")
	ErrDuplicateSensor = errors.New("trace: duplicate sensor id")
	ErrDuplicateBoard  = errors.New("trace: duplicate board id")
)

// Lifecycle enforces the setup order for a trace backend:
// Init once, then any number of AddSensor/AddBoard, then Finalize once after
// at least one board.
type Lifecycle struct {
	mu       sync.Mutex
	post     func(func())
	initDone bool
	final    bool
	sensors  map[string]bool
	boards   map[string]bool
}

// NewLifecycle creates a Lifecycle. post runs the Init callback; pass the
// event loop's Post so the callback runs on a later turn. A nil post calls
// the callback directly.
func NewLifecycle(post func(func())) *Lifecycle {
	return &Lifecycle{
		post:    post,
		sensors: make(map[string]bool),
		boards:  make(map[string]bool),
	}
}

// Init marks the backend initialized and hands ready to post.
func (l *Lifecycle) Init(ready func()) error {
	l.mu.Lock()
	if l.initDone {
		l.mu.Unlock()
		return ErrDoubleInit
	}
	if ready == nil {
		l.mu.Unlock()
		return ErrNilCallback
	}
	l.initDone = true
	l.mu.Unlock()

	if l.post != nil {
		l.post(ready)
	} else {
		ready()
	}
	return nil
}

// AddSensor registers a sensor id for tracing.
func (l *Lifecycle) AddSensor(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkAdd("addSensor"); err != nil {
		return err
	}
	if l.sensors[id] {
		return fmt.Errorf("%w: %s", ErrDuplicateSensor, id)
	}
	l.sensors[id] = true
	return nil
}

// AddBoard registers a board id for tracing.
func (l *Lifecycle) AddBoard(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkAdd("addBoard"); err != nil {
		return err
	}
	if l.boards[id] {
		return fmt.Errorf("%w: %s", ErrDuplicateBoard, id)
	}
	l.boards[id] = true
	return nil
}

func (l *Lifecycle) checkAdd(op string) error {
	if !l.initDone {
		return fmt.Errorf("%w: called %s", ErrNotInitialized, op)
	}
	if l.final {
		return fmt.Errorf("%w: called %s", ErrSetupComplete, op)
	}
	return nil
}

// Finalize closes the setup phase.
func (l *Lifecycle) Finalize() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initDone {
		return fmt.Errorf("%w: called finalize", ErrNotInitialized)
	}
	if l.final {
		return ErrDoubleFinalize
	}
	if len(l.boards) == 0 {
		return ErrNoBoard
	}
	l.final = true
	return nil
}

// Ready reports whether setup has been finalized.
func (l *Lifecycle) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.final
}

// Sensors returns the number of registered sensors.
func (l *Lifecycle) Sensors() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sensors)
}
