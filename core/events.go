package core

import (
	"context"
	"time"
)

// Event is a domain event published after a state change has been committed.
type Event struct {
	Type       string      `json:"type"`
	TenantID   string      `json:"tenant_id"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// EventPublisher is any service that can forward domain events to other systems.
type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
}
