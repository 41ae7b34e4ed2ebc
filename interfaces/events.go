package interfaces

import (
	"context"
)

type EventPublisher interface {
	PublishDomainNeedsAttention(ctx context.Context, tenant, domainID string, payload any) error
	PublishEmailSuppressed(ctx context.Context, email string, payload any) error
	Close() error
}

// EventListener handles one event type consumed from one queue.
type EventListener interface {
	Handle(ctx context.Context, baseEvent any) error
	GetEventType() string
	GetQueueName() string
}
