package events

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/customeros/mailwarden/dto"
	"github.com/customeros/mailwarden/internal/logger"
	"github.com/customeros/mailwarden/internal/tracing"
	"github.com/customeros/mailwarden/internal/utils"
)

const (
	// exchanges
	ExchangeMailwarden = "mailwarden"
	ExchangeDeadLetter = "mailwarden-dead-letter"

	// queues
	QueueDomainAttention  = "mailwarden-domain-attention"
	QueueEmailSuppressed  = "mailwarden-email-suppressed"
	QueueSuppressRequests = "mailwarden-suppress-requests"
	DLQDomainAttention    = QueueDomainAttention + "-dlq"
	DLQEmailSuppressed    = QueueEmailSuppressed + "-dlq"
	DLQSuppressRequests   = QueueSuppressRequests + "-dlq"

	// routing keys
	RoutingKeyDeadLetter           = "dead-letter"
	RoutingKeyDomainNeedsAttention = "domain.needs_attention"
	RoutingKeyEmailSuppressed      = "email.suppressed"
	RoutingKeySuppressRequest      = "email.suppress"

	EntityTypeDomain = "domain"
	EntityTypeEmail  = "email"

	DefaultMessageTTL          = 240 * time.Hour
	DefaultMaxRetries          = 3
	DefaultPublishTimeout      = 5 * time.Second
	DefaultReconnectBackoff    = time.Second
	DefaultMaxReconnectBackoff = 30 * time.Second
)

// bindings maps every durable queue to its routing key on the mailwarden exchange.
var bindings = []struct {
	queue      string
	dlq        string
	routingKey string
}{
	{QueueDomainAttention, DLQDomainAttention, RoutingKeyDomainNeedsAttention},
	{QueueEmailSuppressed, DLQEmailSuppressed, RoutingKeyEmailSuppressed},
	{QueueSuppressRequests, DLQSuppressRequests, RoutingKeySuppressRequest},
}

type PublisherConfig struct {
	MessageTTL          time.Duration
	MaxRetries          int
	PublishTimeout      time.Duration
	ReconnectBackoff    time.Duration
	MaxReconnectBackoff time.Duration
}

func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{
		MessageTTL:          DefaultMessageTTL,
		MaxRetries:          DefaultMaxRetries,
		PublishTimeout:      DefaultPublishTimeout,
		ReconnectBackoff:    DefaultReconnectBackoff,
		MaxReconnectBackoff: DefaultMaxReconnectBackoff,
	}
}

type RabbitMQPublisher struct {
	connection      *amqp091.Connection
	connectionMutex sync.Mutex
	publishChannel  *amqp091.Channel
	publishMutex    sync.Mutex
	url             string
	logger          logger.Logger
	confirms        chan amqp091.Confirmation
	config          PublisherConfig
	closed          bool
}

func NewRabbitMQPublisher(rabbitmqURL string, logger logger.Logger, config *PublisherConfig) (*RabbitMQPublisher, error) {
	if config == nil {
		config = DefaultPublisherConfig()
	}

	publisher := &RabbitMQPublisher{
		url:    rabbitmqURL,
		logger: logger,
		config: *config,
	}

	if err := publisher.connect(); err != nil {
		return nil, err
	}
	return publisher, nil
}

func (r *RabbitMQPublisher) PublishDomainNeedsAttention(ctx context.Context, tenant, domainID string, payload any) error {
	ctx = utils.SetTenantInContext(ctx, tenant)
	return r.publishEventOnExchange(ctx, domainID, EntityTypeDomain, payload, RoutingKeyDomainNeedsAttention)
}

func (r *RabbitMQPublisher) PublishEmailSuppressed(ctx context.Context, email string, payload any) error {
	return r.publishEventOnExchange(ctx, email, EntityTypeEmail, payload, RoutingKeyEmailSuppressed)
}

func (r *RabbitMQPublisher) setupPublishChannel() error {
	channel, err := r.connection.Channel()
	if err != nil {
		return errors.Wrap(err, "Failed to open publish channel")
	}

	if err := channel.Confirm(false); err != nil {
		channel.Close()
		return errors.Wrap(err, "Failed to enable publisher confirms")
	}

	r.confirms = channel.NotifyPublish(make(chan amqp091.Confirmation, 1))
	r.publishChannel = channel
	return nil
}

func (r *RabbitMQPublisher) handleReconnection(connection *amqp091.Connection) {
	notifyClose := connection.NotifyClose(make(chan *amqp091.Error, 1))
	err, ok := <-notifyClose
	if !ok || err == nil {
		// closed on purpose
		return
	}
	r.logger.Warnf("RabbitMQ connection closed: %v, attempting to reconnect", err)

	backoff := r.config.ReconnectBackoff
	for {
		r.connectionMutex.Lock()
		closed := r.closed
		r.connectionMutex.Unlock()
		if closed {
			return
		}

		if err := r.connect(); err == nil {
			r.logger.Info("Successfully reconnected to RabbitMQ")
			return
		} else {
			r.logger.Errorf("Failed to reconnect: %v, retrying in %v", err, backoff)
		}
		time.Sleep(backoff)

		backoff *= 2
		if backoff > r.config.MaxReconnectBackoff {
			backoff = r.config.MaxReconnectBackoff
		}
	}
}

func (r *RabbitMQPublisher) setupExchangesAndQueues() error {
	channel, err := r.connection.Channel()
	if err != nil {
		return errors.Wrap(err, "Failed to open channel for exchange/queue setup")
	}
	defer channel.Close()

	return DeclareTopology(channel, r.config.MessageTTL)
}

// DeclareTopology declares the exchanges, queues and dead-letter queues used by mailwarden.
func DeclareTopology(channel *amqp091.Channel, messageTTL time.Duration) error {
	err := channel.ExchangeDeclare(
		ExchangeDeadLetter,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return errors.Wrap(err, "Failed to declare dead letter exchange")
	}

	err = channel.ExchangeDeclare(ExchangeMailwarden, "direct", true, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "Failed to declare mailwarden exchange")
	}

	for _, b := range bindings {
		if err := declareQueueWithDLQ(channel, b.queue, b.dlq, messageTTL); err != nil {
			return err
		}
		if err := channel.QueueBind(b.queue, b.routingKey, ExchangeMailwarden, false, nil); err != nil {
			return errors.Wrapf(err, "Failed to bind queue %s to exchange %s", b.queue, ExchangeMailwarden)
		}
	}
	return nil
}

func declareQueueWithDLQ(channel *amqp091.Channel, queueName, dlqName string, messageTTL time.Duration) error {
	_, err := channel.QueueDeclare(dlqName, true, false, false, false, nil)
	if err != nil {
		return errors.Wrapf(err, "Failed to declare DLQ %s", dlqName)
	}

	err = channel.QueueBind(dlqName, RoutingKeyDeadLetter, ExchangeDeadLetter, false, nil)
	if err != nil {
		return errors.Wrapf(err, "Failed to bind DLQ %s to exchange", dlqName)
	}

	args := amqp091.Table{
		"x-dead-letter-exchange":    ExchangeDeadLetter,
		"x-dead-letter-routing-key": RoutingKeyDeadLetter,
		"x-message-ttl":             messageTTL.Milliseconds(),
	}
	_, err = channel.QueueDeclare(queueName, true, false, false, false, args)
	if err != nil {
		return errors.Wrapf(err, "Failed to declare queue %s", queueName)
	}
	return nil
}

func (r *RabbitMQPublisher) connect() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	connection, err := amqp091.Dial(r.url)
	if err != nil {
		return errors.Wrap(err, "Failed to connect to RabbitMQ")
	}
	r.connection = connection

	if err := r.setupExchangesAndQueues(); err != nil {
		return errors.Wrap(err, "Failed to setup exchanges and queues")
	}
	if err := r.setupPublishChannel(); err != nil {
		return errors.Wrap(err, "Failed to setup publish channel")
	}

	go r.handleReconnection(connection)
	return nil
}

func (r *RabbitMQPublisher) ensureConnectionAndChannel() error {
	if r.connection == nil || r.connection.IsClosed() {
		if err := r.connect(); err != nil {
			return errors.Wrap(err, "Failed to establish connection")
		}
	}

	if r.publishChannel == nil || r.publishChannel.IsClosed() {
		if err := r.setupPublishChannel(); err != nil {
			return errors.Wrap(err, "Failed to establish channel")
		}
	}
	return nil
}

// NewEvent wraps a payload in the event envelope shared by every mailwarden queue.
func NewEvent(ctx context.Context, entityId, entityType string, message any) dto.Event {
	messageType := reflect.TypeOf(message)
	eventType := ""
	if messageType != nil {
		if messageType.Kind() == reflect.Ptr {
			messageType = messageType.Elem()
		}
		eventType = messageType.Name()
	}

	uberTraceId := ""
	if span := opentracing.SpanFromContext(ctx); span != nil {
		uberTraceId = tracing.ExtractTextMapCarrier(span.Context())["uber-trace-id"]
	}

	return dto.Event{
		Event: dto.EventDetails{
			Id:         utils.GenerateID("event"),
			EntityId:   entityId,
			EntityType: entityType,
			Tenant:     utils.GetTenantFromContext(ctx),
			EventType:  eventType,
			Data:       message,
		},
		Metadata: dto.EventMetadata{
			UberTraceId: uberTraceId,
			AppSource:   utils.GetAppSourceFromContext(ctx),
			Timestamp:   utils.Now().Format(time.RFC3339),
		},
	}
}

func (r *RabbitMQPublisher) publishEventOnExchange(ctx context.Context, entityId, entityType string, message any, routingKey string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RabbitMQPublisher.PublishEventOnExchange")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, entityId)
	span.LogKV("routingKey", routingKey)

	err := r.publishMessageOnExchange(ctx, NewEvent(ctx, entityId, entityType, message), ExchangeMailwarden, routingKey)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (r *RabbitMQPublisher) publishMessageOnExchange(ctx context.Context, message any, exchange, routingKey string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RabbitMQPublisher.PublishMessageOnExchange")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	tracing.LogObjectAsJson(span, "message", message)

	var lastErr error
	for attempt := 0; attempt < r.config.MaxRetries; attempt++ {
		lastErr = r.publishWithConfirm(ctx, message, exchange, routingKey)
		if lastErr == nil {
			return nil
		}

		r.logger.Warnf("Publish attempt %d failed: %v", attempt+1, lastErr)
		if attempt < r.config.MaxRetries-1 {
			time.Sleep(time.Millisecond * 100 * time.Duration(attempt+1))
		}
	}
	return errors.Wrap(lastErr, "Failed to publish message after all retries")
}

func (r *RabbitMQPublisher) publishWithConfirm(ctx context.Context, message any, exchange, routingKey string) error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := r.ensureConnectionAndChannel(); err != nil {
		return err
	}

	jsonBody, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "Failed to marshal message")
	}

	err = r.publishChannel.PublishWithContext(ctx,
		exchange,
		routingKey,
		true,  // mandatory
		false, // immediate
		amqp091.Publishing{
			DeliveryMode: amqp091.Persistent,
			ContentType:  "application/json",
			Body:         jsonBody,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return errors.Wrap(err, "Failed to publish message")
	}

	select {
	case confirm := <-r.confirms:
		if !confirm.Ack {
			return errors.New("Message was not confirmed by server")
		}
	case <-time.After(r.config.PublishTimeout):
		return errors.New("Publish confirmation timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Close gracefully shuts down the publisher
func (r *RabbitMQPublisher) Close() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()
	r.closed = true

	var err error
	if r.publishChannel != nil {
		if err = r.publishChannel.Close(); err != nil {
			r.logger.Errorf("Error closing publish channel: %v", err)
		}
	}

	if r.connection != nil {
		if closeErr := r.connection.Close(); closeErr != nil {
			r.logger.Errorf("Error closing connection: %v", closeErr)
			if err == nil {
				err = closeErr
			}
		}
	}
	return err
}
