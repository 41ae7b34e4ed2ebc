package events

import (
	"fmt"

	"github.com/customeros/mailwarden/interfaces"
	"github.com/customeros/mailwarden/internal/logger"
)

// EventsService owns the publisher and, when listeners are registered, the subscriber.
type EventsService struct {
	Publisher  interfaces.EventPublisher
	Subscriber *RabbitMQSubscriber
}

// NewEventsService connects to RabbitMQ. An empty URL yields a NoopPublisher and no subscriber.
func NewEventsService(rabbitmqURL string, log logger.Logger, publisherConfig *PublisherConfig) (*EventsService, error) {
	if rabbitmqURL == "" {
		log.Warn("RABBITMQ_URL not set, events will not be published")
		return &EventsService{Publisher: NewNoopPublisher(log)}, nil
	}

	publisher, err := NewRabbitMQPublisher(rabbitmqURL, log, publisherConfig)
	if err != nil {
		return nil, err
	}

	subscriber, err := NewRabbitMQSubscriber(rabbitmqURL, log, nil)
	if err != nil {
		publisher.Close()
		return nil, err
	}

	return &EventsService{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// StartSuppressionListener consumes suppress requests into the suppression list.
func (s *EventsService) StartSuppressionListener(log logger.Logger, suppression interfaces.SuppressionService) error {
	if s.Subscriber == nil {
		return nil
	}
	s.Subscriber.RegisterListener(NewSuppressRequestListener(log, suppression))
	return s.Subscriber.ListenQueue(QueueSuppressRequests)
}

func (s *EventsService) Close() error {
	var errs []error

	if s.Subscriber != nil {
		if err := s.Subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing events service: %v", errs)
	}

	return nil
}
