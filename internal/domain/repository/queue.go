package repository

import (
	"context"

	"github.com/google/uuid"
)

// PurgeRequest asks the gateway to evict cached variants, either by explicit
// cache key or by purge tag.
type PurgeRequest struct {
	ID   uuid.UUID `json:"id"`
	Keys []string  `json:"keys,omitempty"`
	Tags []string  `json:"tags,omitempty"`
}

// PurgeQueue defines the interface for the purge message queue.
// Implementations should be provided by the infrastructure layer (e.g., RabbitMQ).
type PurgeQueue interface {
	// PublishPurge sends a purge request to the queue.
	PublishPurge(ctx context.Context, req PurgeRequest) error

	// ConsumePurges starts consuming purge requests. The handler is called
	// for each received request; a non-nil error nacks the delivery.
	ConsumePurges(ctx context.Context, handler func(req PurgeRequest) error) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}
