package testutil

import (
	"sync"

	"github.com/ernie/portal-repository/internal/domain"
)

// RecordingSink collects published events
type RecordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

// Publish implements domain.EventSink
func (r *RecordingSink) Publish(event domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything published so far
func (r *RecordingSink) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// OfType returns the published events with the given type
func (r *RecordingSink) OfType(eventType string) []domain.Event {
	out := []domain.Event{}
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
