package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailwarden/dto"
	"github.com/customeros/mailwarden/internal/enum"
	mwerrors "github.com/customeros/mailwarden/internal/errors"
	"github.com/customeros/mailwarden/internal/models"
	"github.com/customeros/mailwarden/internal/utils"
	"github.com/customeros/mailwarden/services/monitor"
)

type mockTrainer struct {
	mock.Mock
}

func (m *mockTrainer) RunTraining(ctx context.Context, scope models.TrainingScope) (*dto.TrainingResult, error) {
	args := m.Called(ctx, scope)
	result, _ := args.Get(0).(*dto.TrainingResult)
	return result, args.Error(1)
}

func (m *mockTrainer) GetAllowance(ctx context.Context, email string) (*dto.Allowance, error) {
	args := m.Called(ctx, email)
	allowance, _ := args.Get(0).(*dto.Allowance)
	return allowance, args.Error(1)
}

type mockMonitor struct {
	mock.Mock
}

func (m *mockMonitor) ForceRun(ctx context.Context) (*monitor.RunSummary, error) {
	args := m.Called(ctx)
	summary, _ := args.Get(0).(*monitor.RunSummary)
	return summary, args.Error(1)
}

func (m *mockMonitor) GetTrainingStatus(ctx context.Context) (*dto.TrainingStatus, error) {
	args := m.Called(ctx)
	status, _ := args.Get(0).(*dto.TrainingStatus)
	return status, args.Error(1)
}

func (m *mockMonitor) GetDomainStatus(ctx context.Context, domainID string) (*dto.DomainStatus, error) {
	args := m.Called(ctx, domainID)
	status, _ := args.Get(0).(*dto.DomainStatus)
	return status, args.Error(1)
}

func (m *mockMonitor) ScheduleDelayedCheck(ctx context.Context, domainID string, at time.Time) error {
	return m.Called(ctx, domainID, at).Error(0)
}

type mockBounce struct {
	mock.Mock
}

func (m *mockBounce) TestConnection(ctx context.Context, domainID string) (*dto.ConnectionTestResult, error) {
	args := m.Called(ctx, domainID)
	result, _ := args.Get(0).(*dto.ConnectionTestResult)
	return result, args.Error(1)
}

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
	if content := args.String(2); content != "" {
		_, _ = io.WriteString(w, content)
	}
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

type fixture struct {
	router      *gin.Engine
	trainer     *mockTrainer
	monitor     *mockMonitor
	bounce      *mockBounce
	suppression *mockSuppression
}

func newFixture() *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		trainer:     new(mockTrainer),
		monitor:     new(mockMonitor),
		bounce:      new(mockBounce),
		suppression: new(mockSuppression),
	}
	h := InitHandlers(f.trainer, f.monitor, f.bounce, f.suppression)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(utils.WithCustomContextFromGinRequest(c, "test"))
		c.Next()
	})
	r.POST("/training/run", h.Training.RunTraining())
	r.GET("/training/status", h.Training.Status())
	r.POST("/monitor/run", h.Training.RunMonitor())
	r.GET("/senders/:email/allowance", h.Training.Allowance())
	r.GET("/domains/:id/status", h.Domains.Status())
	r.POST("/domains/:id/bounce/test", h.Domains.TestBounceMailbox())
	r.POST("/domains/:id/checks", h.Domains.ScheduleCheck())
	r.POST("/suppressions", h.Suppressions.Add())
	r.GET("/suppressions/export", h.Suppressions.Export())
	r.POST("/suppressions/import", h.Suppressions.Import())
	r.GET("/suppressions/:email", h.Suppressions.Check())
	r.DELETE("/suppressions/:email", h.Suppressions.Remove())
	f.router = r
	return f
}

func (f *fixture) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestRunTraining_Scopes(t *testing.T) {
	f := newFixture()
	result := &dto.TrainingResult{Mode: "automatic", Processed: 3, Updated: 2, Errors: []string{"s2: no log data"}}

	f.trainer.On("RunTraining", mock.Anything, models.TrainingScope{}).Return(result, nil).Once()
	f.trainer.On("RunTraining", mock.Anything, models.TrainingScope{Tenant: "acme"}).Return(result, nil).Once()
	f.trainer.On("RunTraining", mock.Anything, models.TrainingScope{DomainID: "dom_1"}).Return(result, nil).Once()

	w := f.do(http.MethodPost, "/training/run", `{"scope":"all"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, decode[dto.TrainingResult](t, w).Processed)

	w = f.do(http.MethodPost, "/training/run", `{"scope":"tenant"}`, "X-Tenant", "acme")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/training/run", `{"scope":"domain","domainId":"dom_1"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	f.trainer.AssertExpectations(t)
}

func TestRunTraining_InvalidScope(t *testing.T) {
	f := newFixture()

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/training/run", `{"scope":"tenant"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/training/run", `{"scope":"domain"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/training/run", `{"scope":"galaxy"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/training/run", `{not json`).Code)
	f.trainer.AssertNotCalled(t, "RunTraining", mock.Anything, mock.Anything)
}

func TestRunTraining_NoActiveSenders(t *testing.T) {
	f := newFixture()
	f.trainer.On("RunTraining", mock.Anything, models.TrainingScope{}).Return(nil, mwerrors.ErrNoActiveSenders).Once()

	w := f.do(http.MethodPost, "/training/run", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode[ErrorResponse](t, w).Error, "no active senders")
}

func TestTrainingStatusAndAllowance(t *testing.T) {
	f := newFixture()
	f.monitor.On("GetTrainingStatus", mock.Anything).Return(&dto.TrainingStatus{ActiveSenderCount: 4, CurrentMode: "manual"}, nil).Once()
	f.trainer.On("GetAllowance", mock.Anything, "jane@acme.io").Return(&dto.Allowance{Email: "jane@acme.io", DailyLimit: 100, CurrentDailySent: 40, Remaining: 60}, nil).Once()
	f.trainer.On("GetAllowance", mock.Anything, "nobody@acme.io").Return(nil, mwerrors.ErrSenderNotFound).Once()

	w := f.do(http.MethodGet, "/training/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(4), decode[dto.TrainingStatus](t, w).ActiveSenderCount)

	w = f.do(http.MethodGet, "/senders/jane@acme.io/allowance", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 60, decode[dto.Allowance](t, w).Remaining)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/senders/nobody@acme.io/allowance", "").Code)
}

func TestRunMonitor(t *testing.T) {
	f := newFixture()
	f.monitor.On("ForceRun", mock.Anything).Return(&monitor.RunSummary{Domains: 2, NeedsAttention: 1}, nil).Once()
	f.monitor.On("ForceRun", mock.Anything).Return(nil, mwerrors.ErrRunInProgress).Once()

	w := f.do(http.MethodPost, "/monitor/run", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[monitor.RunSummary](t, w).NeedsAttention)

	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/monitor/run", "").Code)
}

func TestDomainEndpoints(t *testing.T) {
	f := newFixture()
	f.monitor.On("GetDomainStatus", mock.Anything, "dom_1").Return(&dto.DomainStatus{DomainID: "dom_1", HealthStatus: "good"}, nil).Once()
	f.monitor.On("GetDomainStatus", mock.Anything, "dom_x").Return(nil, mwerrors.ErrDomainNotFound).Once()
	f.bounce.On("TestConnection", mock.Anything, "dom_1").Return(&dto.ConnectionTestResult{Success: true, MessageCount: 7}, nil).Once()
	f.bounce.On("TestConnection", mock.Anything, "dom_2").Return(nil, mwerrors.ErrMailboxNotConfigured).Once()

	w := f.do(http.MethodGet, "/domains/dom_1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "good", decode[dto.DomainStatus](t, w).HealthStatus)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/domains/dom_x/status", "").Code)

	w = f.do(http.MethodPost, "/domains/dom_1/bounce/test", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, decode[dto.ConnectionTestResult](t, w).MessageCount)
	assert.Equal(t, http.StatusUnprocessableEntity, f.do(http.MethodPost, "/domains/dom_2/bounce/test", "").Code)
}

func TestScheduleCheck(t *testing.T) {
	f := newFixture()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.monitor.On("ScheduleDelayedCheck", mock.Anything, "dom_1", at).Return(nil).Once()
	f.monitor.On("ScheduleDelayedCheck", mock.Anything, "dom_1", mock.AnythingOfType("time.Time")).Return(nil).Once()

	w := f.do(http.MethodPost, "/domains/dom_1/checks", `{"at":"2026-03-01T12:00:00Z"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, at.Equal(decode[ScheduleCheckResponse](t, w).ScheduledAt))

	before := time.Now()
	w = f.do(http.MethodPost, "/domains/dom_1/checks", `{"delayMinutes":30}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.WithinDuration(t, before.Add(30*time.Minute), decode[ScheduleCheckResponse](t, w).ScheduledAt, time.Minute)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/domains/dom_1/checks", `{"delayMinutes":-5}`).Code)
	f.monitor.AssertExpectations(t)
}

func TestSuppressionCheck(t *testing.T) {
	f := newFixture()
	entry := &models.SuppressionEntry{Email: "jane@acme.io", Type: enum.SuppressionBounce}
	f.suppression.On("IsSuppressed", mock.Anything, "jane@acme.io").Return(true, nil)
	f.suppression.On("IsSuppressed", mock.Anything, "ok@acme.io").Return(false, nil)
	f.suppression.On("GetEntry", mock.Anything, "jane@acme.io").Return(entry, nil).Once()

	w := f.do(http.MethodGet, "/suppressions/Jane@Acme.io", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[SuppressionResponse](t, w)
	assert.True(t, resp.Suppressed)
	assert.Nil(t, resp.Entry)

	w = f.do(http.MethodGet, "/suppressions/jane@acme.io?details=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[SuppressionResponse](t, w)
	require.NotNil(t, resp.Entry)
	assert.Equal(t, enum.SuppressionBounce, resp.Entry.Type)

	w = f.do(http.MethodGet, "/suppressions/ok@acme.io", "")
	assert.False(t, decode[SuppressionResponse](t, w).Suppressed)
}

func TestSuppressionAddAndRemove(t *testing.T) {
	f := newFixture()
	f.suppression.On("AddEmail", mock.Anything, "jane@acme.io", enum.SuppressionManual, sourceAPI, "asked", map[string]any(nil)).
		Return(&models.SuppressionEntry{Email: "jane@acme.io", Type: enum.SuppressionManual}, nil).Once()
	f.suppression.On("AddEmail", mock.Anything, "bogus", enum.SuppressionManual, sourceAPI, "", map[string]any(nil)).
		Return(nil, mwerrors.ErrInvalidEmail).Once()
	f.suppression.On("RemoveEmail", mock.Anything, "jane@acme.io").Return(true, nil).Once()
	f.suppression.On("RemoveEmail", mock.Anything, "jane@acme.io").Return(false, nil).Once()

	w := f.do(http.MethodPost, "/suppressions", `{"email":"jane@acme.io","reason":"asked"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[SuppressionResponse](t, w).Suppressed)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/suppressions", `{"email":"bogus"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/suppressions", `{}`).Code)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/suppressions/jane@acme.io", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/suppressions/jane@acme.io", "").Code)
	f.suppression.AssertExpectations(t)
}

func TestSuppressionExport(t *testing.T) {
	f := newFixture()
	f.suppression.On("Export", mock.Anything, mock.Anything, true).Return(2, nil, "a@acme.io\nb@acme.io\n").Once()
	f.suppression.On("ExportToStorage", mock.Anything, "exports/2026-03-01.csv").Return(2, nil).Once()
	f.suppression.On("ExportToStorage", mock.Anything, "x.csv").Return(0, mwerrors.ErrInvalidConfiguration).Once()

	w := f.do(http.MethodGet, "/suppressions/export?metadata=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a@acme.io\nb@acme.io\n", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), exportFileName)

	w = f.do(http.MethodGet, "/suppressions/export?key=exports/2026-03-01.csv", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"exported":2`)

	assert.Equal(t, http.StatusUnprocessableEntity, f.do(http.MethodGet, "/suppressions/export?key=x.csv", "").Code)
}

func TestSuppressionImport(t *testing.T) {
	f := newFixture()
	f.suppression.On("Import", mock.Anything, mock.Anything, enum.SuppressionUnsubscribe, "legacy").
		Run(func(args mock.Arguments) {
			body, err := io.ReadAll(args.Get(1).(io.Reader))
			require.NoError(t, err)
			assert.Equal(t, "a@acme.io\n", string(body))
		}).
		Return(&dto.ImportResult{Imported: 1}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/suppressions/import?type=unsubscribe&source=legacy", bytes.NewBufferString("a@acme.io\n"))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[dto.ImportResult](t, w).Imported)
}

func TestStatusFor_HidesInternalErrors(t *testing.T) {
	f := newFixture()
	f.monitor.On("GetTrainingStatus", mock.Anything).Return(nil, assert.AnError).Once()

	w := f.do(http.MethodGet, "/training/status", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", decode[ErrorResponse](t, w).Error)
}
