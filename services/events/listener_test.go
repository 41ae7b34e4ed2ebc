package events

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailwarden/dto"
	"github.com/customeros/mailwarden/internal/enum"
	mwerrors "github.com/customeros/mailwarden/internal/errors"
	"github.com/customeros/mailwarden/internal/logger"
	"github.com/customeros/mailwarden/internal/models"
	"github.com/customeros/mailwarden/internal/utils"
)

type mockSuppression struct {
	mock.Mock
}

func (m *mockSuppression) AddEmail(ctx context.Context, email string, suppressionType enum.SuppressionType, source, reason string, metadata map[string]any) (*models.SuppressionEntry, error) {
	args := m.Called(ctx, email, suppressionType, source, reason, metadata)
	entry, _ := args.Get(0).(*models.SuppressionEntry)
	return entry, args.Error(1)
}

func (m *mockSuppression) IsSuppressed(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *mockSuppression) RemoveEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *mockSuppression) GetEntry(ctx context.Context, email string) (*models.SuppressionEntry, error) {
	args := m.Called(ctx, email)
	entry, _ := args.Get(0).(*models.SuppressionEntry)
	return entry, args.Error(1)
}

func (m *mockSuppression) Export(ctx context.Context, w io.Writer, withMetadata bool) (int, error) {
	args := m.Called(ctx, w, withMetadata)
	return args.Int(0), args.Error(1)
}

func (m *mockSuppression) Import(ctx context.Context, r io.Reader, suppressionType enum.SuppressionType, source string) (*dto.ImportResult, error) {
	args := m.Called(ctx, r, suppressionType, source)
	result, _ := args.Get(0).(*dto.ImportResult)
	return result, args.Error(1)
}

func (m *mockSuppression) ExportToStorage(ctx context.Context, key string) (int, error) {
	args := m.Called(ctx, key)
	return args.Int(0), args.Error(1)
}

// wireEvent round-trips an event through JSON so Data arrives as a map, as it does off the queue.
func wireEvent(t *testing.T, entityID string, payload any) dto.Event {
	t.Helper()
	ctx := utils.SetAppSourceInContext(context.Background(), "campaigns")
	raw, err := json.Marshal(NewEvent(ctx, entityID, EntityTypeEmail, payload))
	require.NoError(t, err)

	var event dto.Event
	require.NoError(t, json.Unmarshal(raw, &event))
	return event
}

func TestNewEvent_Envelope(t *testing.T) {
	ctx := utils.SetTenantInContext(context.Background(), "acme")
	event := NewEvent(ctx, "dom_1", EntityTypeDomain, &dto.DomainNeedsAttention{DomainID: "dom_1"})

	assert.Equal(t, "DomainNeedsAttention", event.Event.EventType)
	assert.Equal(t, "acme", event.Event.Tenant)
	assert.Equal(t, EntityTypeDomain, event.Event.EntityType)
	assert.Regexp(t, `^event_`, event.Event.Id)
	assert.NotEmpty(t, event.Metadata.Timestamp)
}

func TestDecodeEventData(t *testing.T) {
	event := wireEvent(t, "jane@acme.io", dto.SuppressEmailRequest{
		Email:    "jane@acme.io",
		Type:     "manual",
		Metadata: map[string]any{"campaign": "c1"},
	})

	decoded, err := DecodeEventData[dto.SuppressEmailRequest](context.Background(), &event)
	require.NoError(t, err)
	assert.Equal(t, "jane@acme.io", decoded.Email)
	assert.Equal(t, "manual", decoded.Type)
	assert.Equal(t, "c1", decoded.Metadata["campaign"])

	event.Event.Data = "not a map"
	_, err = DecodeEventData[dto.SuppressEmailRequest](context.Background(), &event)
	assert.Error(t, err)
}

func TestSuppressRequestListener_DefaultsToUnsubscribe(t *testing.T) {
	suppression := new(mockSuppression)
	listener := NewSuppressRequestListener(logger.NewNopLogger(), suppression)
	assert.Equal(t, "SuppressEmailRequest", listener.GetEventType())
	assert.Equal(t, QueueSuppressRequests, listener.GetQueueName())

	suppression.On("AddEmail", mock.Anything, "jane@acme.io", enum.SuppressionUnsubscribe, sourceEventQueue, "clicked unsubscribe", map[string]any(nil)).
		Return(&models.SuppressionEntry{Email: "jane@acme.io"}, nil).Once()

	event := wireEvent(t, "jane@acme.io", dto.SuppressEmailRequest{Reason: "clicked unsubscribe"})
	require.NoError(t, listener.Handle(context.Background(), event))
	suppression.AssertExpectations(t)
}

func TestSuppressRequestListener_DropsInvalidEmail(t *testing.T) {
	suppression := new(mockSuppression)
	listener := NewSuppressRequestListener(logger.NewNopLogger(), suppression)

	suppression.On("AddEmail", mock.Anything, "not-an-email", enum.SuppressionManual, "support", "", map[string]any(nil)).
		Return(nil, mwerrors.ErrInvalidEmail).Once()

	event := wireEvent(t, "not-an-email", dto.SuppressEmailRequest{Email: "not-an-email", Type: "manual", Source: "support"})
	assert.NoError(t, listener.Handle(context.Background(), event))
	suppression.AssertExpectations(t)
}

func TestSuppressRequestListener_RejectsBadEnvelope(t *testing.T) {
	listener := NewSuppressRequestListener(logger.NewNopLogger(), new(mockSuppression))

	assert.Error(t, listener.Handle(context.Background(), "garbage"))
	assert.Error(t, listener.Handle(context.Background(), dto.Event{}))
}
