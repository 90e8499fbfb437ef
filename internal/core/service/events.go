package service

import (
	"sync"
	"time"
)

type EventType string

const (
	EventOrdersChanged     EventType = "orders_changed"
	EventLedgerChanged     EventType = "ledger_changed"
	EventDeliveryConfirmed EventType = "delivery_confirmed"
)

// Event is a change notification. It carries no state; clients refetch
// through the API after receiving one.
type Event struct {
	Type EventType `json:"type"`
	At   time.Time `json:"at"`
}

type EventSink interface {
	Publish(Event)
}

// Events fans change notifications out to the registered sinks after a
// mutation has committed.
type Events struct {
	mu    sync.RWMutex
	sinks []EventSink
}

func NewEvents() *Events {
	return &Events{}
}

func (e *Events) Register(sink EventSink) {
	e.mu.Lock()
	e.sinks = append(e.sinks, sink)
	e.mu.Unlock()
}

func (e *Events) Publish(t EventType) {
	ev := Event{Type: t, At: time.Now().UTC()}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, sink := range e.sinks {
		sink.Publish(ev)
	}
}
