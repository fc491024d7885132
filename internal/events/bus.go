package events

import (
	"github.com/kelindar/event"
)

// Bus wraps the kelindar/event dispatcher for in-process event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(ConfigUpdatedEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event is generic over the concrete type, so dispatch
	// through a type switch rather than the interface.
	switch e := ev.(type) {
	case ConfigUpdatedEvent:
		event.Publish(b.dispatcher, e)
	case AdoptedEvent:
		event.Publish(b.dispatcher, e)
	case StreamStateChangedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type determines which events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e ConfigUpdatedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ConfigUpdatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(AdoptedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// No-op for unrecognized handler types
		return func() {}
	}
}
