package events

import (
	"context"

	"github.com/customeros/mailwarden/internal/logger"
)

// NoopPublisher logs events instead of publishing them. Used when RABBITMQ_URL is empty.
type NoopPublisher struct {
	log logger.Logger
}

func NewNoopPublisher(log logger.Logger) *NoopPublisher {
	return &NoopPublisher{log: log}
}

func (p *NoopPublisher) PublishDomainNeedsAttention(ctx context.Context, tenant, domainID string, payload any) error {
	p.log.Debugf("Skipping %s event for domain %s", RoutingKeyDomainNeedsAttention, domainID)
	return nil
}

func (p *NoopPublisher) PublishEmailSuppressed(ctx context.Context, email string, payload any) error {
	p.log.Debugf("Skipping %s event for %s", RoutingKeyEmailSuppressed, email)
	return nil
}

func (p *NoopPublisher) Close() error {
	return nil
}
