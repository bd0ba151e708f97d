// Package storage keeps recent engine events in memory.
package storage

import (
	"sync"
	"time"

	"campusnet/internal/events"
)

// DefaultJournalSize bounds the journal when no size is given.
const DefaultJournalSize = 1000

// Subscriber is the part of the event bus the journal attaches to.
type Subscriber interface {
	SubscribeAll(h events.Handler) func()
}

// EventJournal is a bounded, in-memory record of published events.
type EventJournal struct {
	mu      sync.RWMutex
	max     int
	history []events.Event
}

// NewEventJournal creates a journal keeping at most max events.
func NewEventJournal(max int) *EventJournal {
	if max <= 0 {
		max = DefaultJournalSize
	}
	return &EventJournal{max: max}
}

// Attach records every event published on bus until the returned function is called.
func (j *EventJournal) Attach(bus Subscriber) func() {
	return bus.SubscribeAll(j.Append)
}

// Append adds an event, dropping the oldest once the journal is full.
func (j *EventJournal) Append(ev events.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.history = append(j.history, ev)
	if len(j.history) > j.max {
		j.history = j.history[len(j.history)-j.max:]
	}
}

// Latest returns the latest event if it exists.
func (j *EventJournal) Latest() (events.Event, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if len(j.history) == 0 {
		return events.Event{}, false
	}
	return j.history[len(j.history)-1], true
}

// LatestOf returns the most recent event of type t.
func (j *EventJournal) LatestOf(t events.Type) (events.Event, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	for i := len(j.history) - 1; i >= 0; i-- {
		if j.history[i].Type == t {
			return j.history[i], true
		}
	}
	return events.Event{}, false
}

// History returns a copy of the journal, oldest first.
func (j *EventJournal) History() []events.Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	copied := make([]events.Event, len(j.history))
	copy(copied, j.history)
	return copied
}

// Query returns up to limit events, oldest first, that match types (all when
// empty) and were published at or after since. A limit <= 0 means no limit;
// the newest events are kept when trimming.
func (j *EventJournal) Query(since time.Time, limit int, types ...events.Type) []events.Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	// Publishers stamp events before delivery, so the journal is in
	// append order, not strictly in time order.
	var out []events.Event
	for _, ev := range j.history {
		if ev.Time.Before(since) || !matches(ev.Type, types) {
			continue
		}
		out = append(out, ev)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Len returns the number of stored events.
func (j *EventJournal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.history)
}

func matches(t events.Type, types []events.Type) bool {
	if len(types) == 0 {
		return true
	}
	for _, want := range types {
		if t == want {
			return true
		}
	}
	return false
}
