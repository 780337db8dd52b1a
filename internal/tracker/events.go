package tracker

import (
	"log/slog"
	"sync"
	"time"

	"airwatch/internal/device"
)

// Event types
const (
	EventDeviceSeen    = "device_seen"
	EventSignalChanged = "signal_changed"
	EventSourceClosed  = "source_closed"
)

// Event is one tracker notification. Device is set for device_seen and
// signal_changed, Previous only for signal_changed, Summary only for
// source_closed.
type Event struct {
	Type     string         `json:"type"`
	At       time.Time      `json:"at"`
	Device   *DeviceState   `json:"device,omitempty"`
	Previous *device.Signal `json:"previous,omitempty"`
	Summary  *SourceSummary `json:"summary,omitempty"`
}

// SourceSummary reports how the line source ended.
type SourceSummary struct {
	Lines   uint64 `json:"lines"`
	Devices int    `json:"devices"`
	Error   string `json:"error,omitempty"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

type subscription struct {
	id uint64
	fn EventHandler
}

// EventBus provides pub/sub for tracker events. Handlers run synchronously
// on the emitting goroutine in subscription order.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	all      []subscription
	nextID   uint64
	logger   *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers: make(map[string][]subscription),
		logger:   logger,
	}
}

// On registers a handler for a specific event type.
// Returns an unsubscribe function.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.handlers[eventType] = append(eb.handlers[eventType], subscription{id: id, fn: handler})
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		eb.handlers[eventType] = removeSub(eb.handlers[eventType], id)
	}
}

// OnAll registers a handler that receives all events.
// Returns an unsubscribe function.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.all = append(eb.all, subscription{id: id, fn: handler})
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		eb.all = removeSub(eb.all, id)
	}
}

func removeSub(subs []subscription, id uint64) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// Emit sends an event to all matching handlers.
// Handlers are called synchronously; a panicking handler is recovered.
func (eb *EventBus) Emit(event Event) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.handlers[event.Type])+len(eb.all))
	for _, s := range eb.handlers[event.Type] {
		handlers = append(handlers, s.fn)
	}
	for _, s := range eb.all {
		handlers = append(handlers, s.fn)
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
				}
			}()
			h(event)
		}()
	}
}
