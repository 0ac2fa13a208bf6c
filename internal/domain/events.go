package domain

import "time"

// Event types for WebSocket notifications
const (
	EventPlayerCreated  = "player_created"
	EventAliasAdded     = "alias_added"
	EventTagsReconciled = "tags_reconciled"
)

// Event represents a real-time event for WebSocket broadcast
type Event struct {
	Type      string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// PlayerCreatedEvent is sent when a sighting creates a new player
type PlayerCreatedEvent struct {
	PlayerID string   `json:"player_id"`
	GameType GameType `json:"game_type"`
	Username string   `json:"username"`
}

// AliasAddedEvent is sent when a known player is seen under a new name
type AliasAddedEvent struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
}

// TagsReconciledEvent is sent after a reconciliation run commits
type TagsReconciledEvent struct {
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
	Added    int `json:"added"`
	Removed  int `json:"removed"`
}

// EventSink receives events for broadcast. Implementations must not block.
type EventSink interface {
	Publish(event Event)
}

// NopSink discards events
type NopSink struct{}

// Publish implements EventSink
func (NopSink) Publish(Event) {}
