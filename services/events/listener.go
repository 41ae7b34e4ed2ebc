package events

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailwarden/dto"
	"github.com/customeros/mailwarden/interfaces"
	"github.com/customeros/mailwarden/internal/enum"
	mwerrors "github.com/customeros/mailwarden/internal/errors"
	"github.com/customeros/mailwarden/internal/logger"
	"github.com/customeros/mailwarden/internal/tracing"
)

const sourceEventQueue = "event_queue"

// BaseEventListener provides common functionality for all listeners
type BaseEventListener struct {
	logger    logger.Logger
	eventType string
	queueName string
}

func NewBaseEventListener(logger logger.Logger, eventType, queueName string) BaseEventListener {
	return BaseEventListener{
		logger:    logger,
		eventType: eventType,
		queueName: queueName,
	}
}

func (b BaseEventListener) GetEventType() string {
	return b.eventType
}

func (b BaseEventListener) GetQueueName() string {
	return b.queueName
}

// ValidateBaseEvent checks the envelope. Tenant is optional since the suppression list is global.
func (b BaseEventListener) ValidateBaseEvent(ctx context.Context, input any) (*dto.Event, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Events.ValidateEvent")
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)

	var message dto.Event
	switch v := input.(type) {
	case dto.Event:
		message = v
	case *dto.Event:
		if v == nil {
			err := errors.New("event is nil")
			tracing.TraceErr(span, err)
			return nil, err
		}
		message = *v
	default:
		err := errors.New("unable to cast to event type")
		tracing.TraceErr(span, err)
		return nil, err
	}

	if message.Event.Data == nil {
		err := errors.New("message data is nil")
		tracing.TraceErr(span, err)
		return nil, err
	}

	if message.Event.EntityId == "" {
		err := errors.New("entity id is empty")
		tracing.TraceErr(span, err)
		return nil, err
	}

	if message.Event.EventType == "" {
		err := errors.New("event type is empty")
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &message, nil
}

func DecodeEventData[T any](ctx context.Context, event *dto.Event) (T, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Listener.DecodeEventData")
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)

	var decoded T

	data, ok := event.Event.Data.(map[string]interface{})
	if !ok {
		err := errors.New("failed to cast event data to map[string]interface{}")
		tracing.TraceErr(span, err)
		return decoded, err
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		tracing.TraceErr(span, err)
		return decoded, err
	}

	if err = json.Unmarshal(jsonBytes, &decoded); err != nil {
		tracing.TraceErr(span, err)
		return decoded, err
	}

	return decoded, nil
}

func GetEventType[T any]() string {
	var t T
	eventType := reflect.TypeOf(t)
	if eventType.Kind() == reflect.Ptr {
		eventType = eventType.Elem()
	}
	return eventType.Name()
}

// SuppressRequestListener adds addresses reported by other services (unsubscribe links,
// manual blocks) to the suppression list.
type SuppressRequestListener struct {
	BaseEventListener
	suppression interfaces.SuppressionService
}

func NewSuppressRequestListener(logger logger.Logger, suppression interfaces.SuppressionService) *SuppressRequestListener {
	return &SuppressRequestListener{
		BaseEventListener: NewBaseEventListener(logger, GetEventType[dto.SuppressEmailRequest](), QueueSuppressRequests),
		suppression:       suppression,
	}
}

func (l *SuppressRequestListener) Handle(ctx context.Context, baseEvent any) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressRequestListener.Handle")
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)

	event, err := l.ValidateBaseEvent(ctx, baseEvent)
	if err != nil {
		return err
	}

	request, err := DecodeEventData[dto.SuppressEmailRequest](ctx, event)
	if err != nil {
		return errors.Wrap(err, "failed to decode suppress request")
	}
	if request.Email == "" {
		request.Email = event.Event.EntityId
	}
	tracing.TagEntity(span, request.Email)

	suppressionType := enum.SuppressionType(request.Type)
	if request.Type == "" {
		suppressionType = enum.SuppressionUnsubscribe
	}
	source := request.Source
	if source == "" {
		source = sourceEventQueue
	}

	_, err = l.suppression.AddEmail(ctx, request.Email, suppressionType, source, request.Reason, request.Metadata)
	if errors.Is(err, mwerrors.ErrInvalidEmail) || errors.Is(err, mwerrors.ErrInvalidArgument) {
		// redelivery cannot fix a bad payload
		l.logger.Warnf("Dropping suppress request for %q: %v", request.Email, err)
		span.LogKV("dropped", err.Error())
		return nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
