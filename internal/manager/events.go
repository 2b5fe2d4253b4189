package manager

// Event represents a supervisor lifecycle event.
// Minimal and stable: name + server name and optional fields via key/values.
type Event struct {
	Name   string
	Server string
	Fields map[string]any
}

// EventPublisher receives events from the supervisor. Implementations should
// be lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
