// internal/events/registry.go
package events

import (
	"encoding/json"
	"fmt"
)

// EventFactory creates a new zero-value event of a specific type.
type EventFactory func() DomainEvent

// Registry maps event types to their factories for deserialization.
type Registry struct {
	factories map[string]EventFactory
}

// NewRegistry creates a new event registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]EventFactory),
	}
}

// Register adds an event type to the registry.
func (r *Registry) Register(eventType string, factory EventFactory) {
	r.factories[eventType] = factory
}

// Unmarshal deserializes a raw event into its concrete type.
func (r *Registry) Unmarshal(raw RawEvent) (DomainEvent, error) {
	factory, ok := r.factories[raw.EventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", raw.EventType)
	}

	event := factory()
	if err := json.Unmarshal([]byte(raw.Payload), event); err != nil {
		return nil, fmt.Errorf("unmarshal event payload: %w", err)
	}

	return event, nil
}

// DefaultRegistry returns a registry with the domain notification event
// types registered, for the admin surface's GET /admin/events endpoint.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(EventItemRequested, func() DomainEvent { return &ItemTransitioned{} })
	r.Register(EventItemScraped, func() DomainEvent { return &ItemTransitioned{} })
	r.Register(EventItemDownloaded, func() DomainEvent { return &ItemTransitioned{} })
	r.Register(EventItemSymlinked, func() DomainEvent { return &ItemTransitioned{} })
	r.Register(EventItemCompleted, func() DomainEvent { return &ItemTransitioned{} })
	r.Register(EventStreamBlacklisted, func() DomainEvent { return &StreamBlacklisted{} })

	return r
}
