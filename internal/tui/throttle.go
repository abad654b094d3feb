package tui

import (
	"time"

	"golang.org/x/time/rate"
)

// DefaultRefreshPerSecond is the redraw cap when none is configured.
const DefaultRefreshPerSecond = 10

// Throttle caps redraws at a fixed rate. A refused redraw marks the view
// dirty so a later flush can pick it up; forced redraws bypass the cap.
type Throttle struct {
	limiter   *rate.Limiter
	interval  time.Duration
	dirty     bool
	scheduled bool
}

func NewThrottle(perSecond int) *Throttle {
	if perSecond <= 0 {
		perSecond = DefaultRefreshPerSecond
	}
	return &Throttle{
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
		interval: time.Second / time.Duration(perSecond),
	}
}

// Allow reports whether a redraw may happen at now.
func (t *Throttle) Allow(now time.Time, force bool) bool {
	if force || t.limiter.AllowN(now, 1) {
		t.dirty = false
		return true
	}
	t.dirty = true
	return false
}

// Schedule reports whether a flush must be scheduled. It returns true at most
// once until Flush runs.
func (t *Throttle) Schedule() bool {
	if !t.dirty || t.scheduled {
		return false
	}
	t.scheduled = true
	return true
}

// Flush clears a scheduled flush and reports whether a redraw is owed.
func (t *Throttle) Flush(now time.Time) bool {
	t.scheduled = false
	if !t.dirty {
		return false
	}
	t.dirty = false
	t.limiter.AllowN(now, 1)
	return true
}

func (t *Throttle) Interval() time.Duration {
	return t.interval
}
