package logic

import "time"

// Holdoff drops read events for a channel for a fixed window after that
// channel's last correction started, so the water has time to reach the
// sensor before the channel can be corrected again.
type Holdoff struct {
	window time.Duration
	last   func(id string) (time.Time, bool)
}

// NewHoldoff creates a holdoff of the given window. last reports when a
// channel's most recent correction started, normally Scheduler.LastCorrection.
// A window <= 0 disables the holdoff.
func NewHoldoff(window time.Duration, last func(id string) (time.Time, bool)) *Holdoff {
	return &Holdoff{window: window, last: last}
}

// Allow reports whether a read event for the channel should reach the scheduler.
func (h *Holdoff) Allow(id string, now time.Time) bool {
	if h == nil || h.window <= 0 {
		return true
	}
	t, ok := h.last(id)
	if !ok {
		return true
	}
	return now.Sub(t) >= h.window
}
