// internal/events/registry_test.go
package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Unmarshal(t *testing.T) {
	registry := NewRegistry()

	registry.Register(EventItemRequested, func() DomainEvent { return &ItemTransitioned{} })
	registry.Register(EventStreamBlacklisted, func() DomainEvent { return &StreamBlacklisted{} })

	raw := RawEvent{
		EventType: EventItemRequested,
		Payload:   `{"type":"item.requested","entity_type":"item","entity_id":42,"occurred_at":"2024-01-01T00:00:00Z","item_id":42,"imdb_id":"tt1","title":"Example","new_state":"requested"}`,
	}

	event, err := registry.Unmarshal(raw)
	require.NoError(t, err)

	transitioned, ok := event.(*ItemTransitioned)
	require.True(t, ok)
	assert.Equal(t, int64(42), transitioned.ItemID)
	assert.Equal(t, "tt1", transitioned.IMDBID)
}

func TestRegistry_UnmarshalUnknownType(t *testing.T) {
	registry := NewRegistry()

	raw := RawEvent{
		EventType: "unknown.event",
		Payload:   `{}`,
	}

	_, err := registry.Unmarshal(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
}

func TestRegistry_UnmarshalInvalidJSON(t *testing.T) {
	registry := NewRegistry()
	registry.Register(EventItemRequested, func() DomainEvent { return &ItemTransitioned{} })

	raw := RawEvent{
		EventType: EventItemRequested,
		Payload:   `{invalid json`,
	}

	_, err := registry.Unmarshal(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal event payload")
}

func TestDefaultRegistry(t *testing.T) {
	registry := DefaultRegistry()

	eventTypes := []string{
		EventItemRequested,
		EventItemScraped,
		EventItemDownloaded,
		EventItemSymlinked,
		EventItemCompleted,
		EventStreamBlacklisted,
	}

	for _, eventType := range eventTypes {
		t.Run(eventType, func(t *testing.T) {
			raw := RawEvent{
				EventType: eventType,
				Payload:   `{"type":"` + eventType + `","entity_type":"item","entity_id":1,"occurred_at":"2024-01-01T00:00:00Z"}`,
			}
			event, err := registry.Unmarshal(raw)
			require.NoError(t, err, "Failed to unmarshal %s", eventType)
			assert.Equal(t, eventType, event.EventType())
		})
	}
}

func TestRegistry_UnmarshalStreamBlacklisted(t *testing.T) {
	registry := DefaultRegistry()

	raw := RawEvent{
		EventType: EventStreamBlacklisted,
		Payload:   `{"type":"stream.blacklisted","entity_type":"item","entity_id":99,"occurred_at":"2024-01-01T12:00:00Z","item_id":99,"infohash":"abc123","reason":"download failed"}`,
	}

	event, err := registry.Unmarshal(raw)
	require.NoError(t, err)

	blacklisted, ok := event.(*StreamBlacklisted)
	require.True(t, ok)
	assert.Equal(t, int64(99), blacklisted.ItemID)
	assert.Equal(t, "abc123", blacklisted.InfoHash)
	assert.Equal(t, int64(99), blacklisted.EntityID())
}

func TestRegistry_UnmarshalItemTransitioned(t *testing.T) {
	registry := DefaultRegistry()

	raw := RawEvent{
		EventType: EventItemCompleted,
		Payload:   `{"type":"item.completed","entity_type":"item","entity_id":50,"occurred_at":"2024-01-01T00:00:00Z","item_id":50,"imdb_id":"tt50","title":"Test Movie","new_state":"completed"}`,
	}

	event, err := registry.Unmarshal(raw)
	require.NoError(t, err)

	transitioned, ok := event.(*ItemTransitioned)
	require.True(t, ok)
	assert.Equal(t, int64(50), transitioned.ItemID)
	assert.Equal(t, "tt50", transitioned.IMDBID)
	assert.Equal(t, "Test Movie", transitioned.Title)
	assert.Equal(t, "completed", transitioned.NewState)
}
