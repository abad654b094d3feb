package agent

import (
	"context"
	"sync"

	"github.com/mattjoyce/agentlive/internal/stream"
)

// EventLog records the events of one run and replays them to any number of
// subscribers, followed by the live tail.
type EventLog struct {
	mu      sync.Mutex
	events  []stream.Event
	closed  bool
	changed chan struct{}
}

// NewEventLog returns an open, empty log.
func NewEventLog() *EventLog {
	return &EventLog{changed: make(chan struct{})}
}

// Append records ev. Events appended after Close are dropped.
func (l *EventLog) Append(ev stream.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.events = append(l.events, ev)
	l.notify()
}

// Close marks the log complete; subscribers end after the last event.
func (l *EventLog) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.notify()
}

// notify wakes every waiting subscriber. l.mu must be held.
func (l *EventLog) notify() {
	close(l.changed)
	l.changed = make(chan struct{})
}

// Closed reports whether the run has finished.
func (l *EventLog) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Events returns a copy of everything recorded so far.
func (l *EventLog) Events() []stream.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]stream.Event(nil), l.events...)
}

func (l *EventLog) since(next int) ([]stream.Event, bool, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var evs []stream.Event
	if next < len(l.events) {
		evs = append(evs, l.events[next:]...)
	}
	return evs, l.closed, l.changed
}

// Subscribe returns every recorded event followed by new ones as they are
// appended. The channel closes after the log is closed and drained, or when
// ctx is done.
func (l *EventLog) Subscribe(ctx context.Context) <-chan stream.Event {
	out := make(chan stream.Event, 16)
	go func() {
		defer close(out)
		next := 0
		for {
			evs, closed, wait := l.since(next)
			for _, ev := range evs {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			next += len(evs)
			if closed {
				return
			}
			select {
			case <-wait:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Hub keeps the event logs of recent runs.
type Hub struct {
	mu    sync.Mutex
	logs  map[string]*EventLog
	order []string
	limit int
}

// NewHub keeps up to limit logs; the oldest finished logs are evicted first.
func NewHub(limit int) *Hub {
	if limit <= 0 {
		limit = 100
	}
	return &Hub{logs: make(map[string]*EventLog), limit: limit}
}

// Open returns the log for runID, creating it when absent.
func (h *Hub) Open(runID string) *EventLog {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.logs[runID]; ok {
		return l
	}
	l := NewEventLog()
	h.logs[runID] = l
	h.order = append(h.order, runID)
	h.evict()
	return l
}

// Get returns the log for runID.
func (h *Hub) Get(runID string) (*EventLog, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.logs[runID]
	return l, ok
}

// evict drops the oldest closed logs over the limit. h.mu must be held.
func (h *Hub) evict() {
	for i := 0; len(h.order) > h.limit && i < len(h.order); {
		id := h.order[i]
		if h.logs[id].Closed() {
			delete(h.logs, id)
			h.order = append(h.order[:i], h.order[i+1:]...)
			continue
		}
		i++
	}
}
