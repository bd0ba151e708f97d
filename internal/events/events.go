// Package events fans out engine notifications to any number of observers.
package events

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// Type names an event kind.
type Type string

// Event types published by the engine.
const (
	StatusChanged       Type = "statusChanged"
	ReconnectStarted    Type = "reconnectStarted"
	ReconnectAttempt    Type = "reconnectAttempt"
	ReconnectSucceeded  Type = "reconnectSucceeded"
	ReconnectFailed     Type = "reconnectFailed"
	ReconnectProgress   Type = "reconnectProgress"
	AllReconnectsFailed Type = "allReconnectsFailed"
	NetworkSwitched     Type = "networkSwitched"
)

// Event is a single notification. Payload holds one of the models types.
type Event struct {
	ID      string    `json:"id"`
	Type    Type      `json:"type"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload,omitempty"`
}

// Handler receives events. Handlers run synchronously on the publishing
// goroutine and must not block.
type Handler func(Event)

// Publisher is what the engine components need from the bus.
type Publisher interface {
	Publish(t Type, payload any)
}

// Bus delivers events to per-type and catch-all subscribers.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	byType map[Type]map[uint64]Handler
	all    map[uint64]Handler

	log logr.Logger
	now func() time.Time
}

// NewBus creates an empty bus.
func NewBus(log logr.Logger) *Bus {
	return &Bus{
		byType: make(map[Type]map[uint64]Handler),
		all:    make(map[uint64]Handler),
		log:    log,
		now:    time.Now,
	}
}

// Subscribe registers h for events of type t and returns a function that
// removes the subscription.
func (b *Bus) Subscribe(t Type, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	subs, ok := b.byType[t]
	if !ok {
		subs = make(map[uint64]Handler)
		b.byType[t] = subs
	}
	subs[id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.byType[t], id)
	}
}

// SubscribeAll registers h for every event.
func (b *Bus) SubscribeAll(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.all[id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.all, id)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.all)
	for _, subs := range b.byType {
		n += len(subs)
	}
	return n
}

// Publish delivers an event to the current subscribers, in subscription order.
// A panicking handler is logged and does not affect the others.
func (b *Bus) Publish(t Type, payload any) {
	ev := Event{
		ID:      uuid.NewString(),
		Type:    t,
		Time:    b.now().UTC(),
		Payload: payload,
	}

	b.mu.RLock()
	handlers := make([]orderedHandler, 0, len(b.byType[t])+len(b.all))
	for id, h := range b.byType[t] {
		handlers = append(handlers, orderedHandler{id: id, h: h})
	}
	for id, h := range b.all {
		handlers = append(handlers, orderedHandler{id: id, h: h})
	}
	b.mu.RUnlock()

	sortHandlers(handlers)
	for _, oh := range handlers {
		b.deliver(oh.h, ev)
	}
}

func (b *Bus) deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error(fmt.Errorf("%v", r), "Event handler panicked", "type", ev.Type)
		}
	}()
	h(ev)
}

type orderedHandler struct {
	id uint64
	h  Handler
}

func sortHandlers(hs []orderedHandler) {
	sort.Slice(hs, func(i, j int) bool { return hs[i].id < hs[j].id })
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Type, any) {}
