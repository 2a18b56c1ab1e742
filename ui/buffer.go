package ui

import (
	"sync"
	"time"
)

// EventKind tags a line shown in a scrolling pane.
type EventKind int

const (
	EventSpot EventKind = iota
	EventWatch
	EventSystem
)

func (k EventKind) Label() string {
	switch k {
	case EventSpot:
		return "SPOT"
	case EventWatch:
		return "WATCH"
	case EventSystem:
		return "SYS"
	default:
		return "UNK"
	}
}

// Event is one pane line.
type Event struct {
	Timestamp time.Time
	Kind      EventKind
	Message   string
}

// eventRing keeps the newest max events. Append may be called from any
// goroutine; Snapshot copies oldest-first.
type eventRing struct {
	mu      sync.Mutex
	events  []Event
	head    int
	count   int
	evicted uint64
}

func newEventRing(max int) *eventRing {
	if max <= 0 {
		max = 1
	}
	return &eventRing{events: make([]Event, max)}
}

func (r *eventRing) Append(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == len(r.events) {
		r.head = (r.head + 1) % len(r.events)
		r.count--
		r.evicted++
	}
	r.events[(r.head+r.count)%len(r.events)] = e
	r.count++
}

func (r *eventRing) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, r.count)
	for i := range out {
		out[i] = r.events[(r.head+i)%len(r.events)]
	}
	return out
}

// Evicted reports how many events were pushed out by newer ones.
func (r *eventRing) Evicted() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evicted
}
