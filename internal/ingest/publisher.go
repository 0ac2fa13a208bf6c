package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Publish sends a sighting and waits for the subscriber's reply
func Publish(ctx context.Context, conn *nats.Conn, subject string, m SightingMessage) (*Reply, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	msg, err := conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, fmt.Errorf("no sighting subscribers on %s: %w", subject, err)
		}
		return nil, fmt.Errorf("publishing sighting: %w", err)
	}

	var reply Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("decoding reply: %w", err)
	}
	if reply.Error != "" {
		return &reply, errors.New(reply.Error)
	}
	return &reply, nil
}
