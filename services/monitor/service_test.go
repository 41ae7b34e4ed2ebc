package monitor

import (
	"context"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailwarden/config"
	"github.com/customeros/mailwarden/dto"
	"github.com/customeros/mailwarden/interfaces"
	mwerrors "github.com/customeros/mailwarden/internal/errors"
	"github.com/customeros/mailwarden/internal/enum"
	"github.com/customeros/mailwarden/internal/logger"
	"github.com/customeros/mailwarden/internal/models"
	"github.com/customeros/mailwarden/services/bounce"
	"github.com/customeros/mailwarden/services/logreader"
	"github.com/customeros/mailwarden/services/training"
)

var testNow = time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

type fakeDomains struct {
	interfaces.DomainRepository
	mu      sync.Mutex
	domains []models.Domain
	updates map[string]models.DomainHealthUpdate
}

func (f *fakeDomains) GetByID(ctx context.Context, id string) (*models.Domain, error) {
	for i := range f.domains {
		if f.domains[i].ID == id {
			d := f.domains[i]
			return &d, nil
		}
	}
	return nil, mwerrors.ErrDomainNotFound
}

func (f *fakeDomains) GetActiveDomains(ctx context.Context, tenant string) ([]models.Domain, error) {
	return append([]models.Domain(nil), f.domains...), nil
}

func (f *fakeDomains) UpdateHealth(ctx context.Context, id string, update models.DomainHealthUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id] = update
	return nil
}

type fakeSenders struct {
	interfaces.SenderRepository
}

func (fakeSenders) ActiveStats(ctx context.Context, scope models.TrainingScope) (*models.SenderStats, error) {
	return &models.SenderStats{ActiveCount: 2, AvgReputation: 82.5, TotalLimit: 300}, nil
}

type fakeTrainer struct {
	mu     sync.Mutex
	scopes []models.TrainingScope
	fail   map[string]error
	onRun  func(scope models.TrainingScope)
}

func (f *fakeTrainer) ResolveSettings(ctx context.Context, tenant string) (training.Settings, error) {
	return training.Settings{Mode: enum.TrainingAutomatic}, nil
}

func (f *fakeTrainer) Run(ctx context.Context, scope models.TrainingScope, settings training.Settings) (*dto.TrainingResult, error) {
	f.mu.Lock()
	f.scopes = append(f.scopes, scope)
	hook := f.onRun
	f.mu.Unlock()
	if hook != nil {
		hook(scope)
	}
	if err := f.fail[scope.DomainID]; err != nil {
		return nil, err
	}
	return &dto.TrainingResult{Mode: settings.Mode.String(), Processed: 2, Updated: 1, Errors: []string{}}, nil
}

func (f *fakeTrainer) Status(ctx context.Context, interval time.Duration) (*dto.TrainingStatus, error) {
	return &dto.TrainingStatus{ActiveSenderCount: 2, AvgReputation: 82.5, CurrentMode: "automatic", NextRunEstimate: testNow}, nil
}

type fakePoller struct {
	calls []string
	err   error
}

func (f *fakePoller) ProcessDomain(ctx context.Context, domain *models.Domain) (*bounce.PollResult, error) {
	f.calls = append(f.calls, domain.ID)
	if f.err != nil {
		return nil, f.err
	}
	return &bounce.PollResult{Messages: 3, Bounces: 2}, nil
}

type fakeEvents struct {
	events []logreader.LogEvent
}

func (f *fakeEvents) Events(ctx context.Context, q logreader.Query) (iter.Seq[logreader.LogEvent], error) {
	return func(yield func(logreader.LogEvent) bool) {
		for _, ev := range f.events {
			if ev.Source != q.Layout || ev.OriginDomain != q.Domain {
				continue
			}
			if !yield(ev) {
				return
			}
		}
	}, nil
}

func logEvents(domain string, layout enum.LogLayout, eventType enum.EventType, n int) []logreader.LogEvent {
	out := make([]logreader.LogEvent, n)
	for i := range out {
		out[i] = logreader.LogEvent{
			Type:         eventType,
			Source:       layout,
			Timestamp:    testNow.Add(-time.Hour),
			Origin:       "news@" + domain,
			Recipient:    "rcpt@remote.org",
			OriginDomain: domain,
		}
	}
	return out
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishDomainNeedsAttention(ctx context.Context, tenant, domainID string, payload any) error {
	return m.Called(ctx, tenant, domainID, payload).Error(0)
}

func (m *mockPublisher) PublishEmailSuppressed(ctx context.Context, email string, payload any) error {
	return m.Called(ctx, email, payload).Error(0)
}

func (m *mockPublisher) Close() error {
	return nil
}

type fixture struct {
	svc       *Service
	store     *Store
	mr        *miniredis.Miniredis
	domains   *fakeDomains
	trainer   *fakeTrainer
	poller    *fakePoller
	publisher *mockPublisher
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		mr:    mr,
		store: NewStore(rdb, 7*24*time.Hour, time.Hour),
		domains: &fakeDomains{
			domains: []models.Domain{
				{ID: "dom_good", Tenant: "acme", Domain: "good.io", Active: true},
				{ID: "dom_bad", Tenant: "acme", Domain: "bad.io", Active: true, BounceHost: "imap.bad.io"},
			},
			updates: make(map[string]models.DomainHealthUpdate),
		},
		trainer:   &fakeTrainer{fail: map[string]error{}},
		poller:    &fakePoller{},
		publisher: &mockPublisher{},
		now:       testNow,
	}

	events := &fakeEvents{}
	events.events = append(events.events, logEvents("good.io", enum.LayoutAccounting, enum.EventDelivered, 100)...)
	events.events = append(events.events, logEvents("bad.io", enum.LayoutAccounting, enum.EventDelivered, 80)...)
	events.events = append(events.events, logEvents("bad.io", enum.LayoutAccounting, enum.EventBounced, 20)...)
	events.events = append(events.events, logEvents("bad.io", enum.LayoutFeedback, enum.EventComplaint, 12)...)
	events.events = append(events.events, logEvents("bad.io", enum.LayoutDiagnostic, enum.EventDiagnostic, 3)...)

	cfg := &config.MonitorConfig{
		RunInterval:       24 * time.Hour,
		Workers:           2,
		LookbackHours:     24,
		MinHealthScore:    70,
		MinDeliveryRate:   90,
		MaxBounceRate:     5,
		MaxComplaintRate:  0.5,
		MaxFeedbackLoops:  10,
		MaxDiagnosticHits: 50,
	}
	logCfg := &config.LogReaderConfig{AccountingGlob: "acct-*.csv", FeedbackGlob: "fbl-*.csv", DiagnosticGlob: "diag-*.csv"}
	f.svc = NewService(logger.NewNopLogger(), cfg, logCfg, f.store, f.domains, fakeSenders{}, f.trainer, f.poller, events,
		WithPublisher(f.publisher),
		WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) expectAttention(domainID string) {
	f.publisher.On("PublishDomainNeedsAttention", mock.Anything, "acme", domainID, mock.AnythingOfType("dto.DomainNeedsAttention")).Return(nil)
}

func TestRunIfDue_RunsOncePerInterval(t *testing.T) {
	f := newFixture(t)
	f.expectAttention("dom_bad")
	ctx := context.Background()

	summary, err := f.svc.RunIfDue(ctx)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.Domains)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 1, summary.NeedsAttention)
	assert.Len(t, summary.Results, 2)

	lastRun, err := f.store.LastRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, lastRun)
	assert.Equal(t, testNow, *lastRun)

	f.now = testNow.Add(23 * time.Hour)
	summary, err = f.svc.RunIfDue(ctx)
	require.NoError(t, err)
	assert.Nil(t, summary)

	f.now = testNow.Add(24 * time.Hour)
	summary, err = f.svc.RunIfDue(ctx)
	require.NoError(t, err)
	assert.NotNil(t, summary)
	assert.False(t, f.mr.Exists("mailwarden:monitor:lock"))
}

func TestForceRun_IgnoresStamp(t *testing.T) {
	f := newFixture(t)
	f.expectAttention("dom_bad")
	ctx := context.Background()

	require.NoError(t, f.store.FinishRun(ctx, testNow))
	summary, err := f.svc.ForceRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.Domains)
}

func TestRun_LockHeldElsewhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.store.AcquireLock(ctx, "other-worker")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.ForceRun(ctx)
	assert.ErrorIs(t, err, mwerrors.ErrRunInProgress)
	assert.Empty(t, f.trainer.scopes)

	require.NoError(t, f.svc.store.ReleaseLock(ctx, f.svc.owner))
	assert.True(t, f.mr.Exists("mailwarden:monitor:lock"), "only the owner may release the lock")
}

func TestRun_DomainResults(t *testing.T) {
	f := newFixture(t)
	f.expectAttention("dom_bad")
	ctx := context.Background()

	_, err := f.svc.ForceRun(ctx)
	require.NoError(t, err)

	good, err := f.store.GetResult(ctx, "dom_good")
	require.NoError(t, err)
	require.NotNil(t, good)
	assert.Equal(t, float64(100), good.HealthScore)
	assert.Equal(t, enum.HealthExcellent, good.HealthStatus)
	assert.False(t, good.NeedsAttention)
	assert.Equal(t, 100, good.Analytics.Delivered)
	assert.Nil(t, good.Bounce)
	require.NotNil(t, good.Training)
	assert.Equal(t, 2, good.Training.Processed)

	bad, err := f.store.GetResult(ctx, "dom_bad")
	require.NoError(t, err)
	require.NotNil(t, bad)
	assert.Equal(t, enum.HealthPoor, bad.HealthStatus)
	assert.True(t, bad.NeedsAttention)
	assert.NotEmpty(t, bad.Reasons)
	assert.Equal(t, 12, bad.Analytics.FeedbackLoops)
	assert.Equal(t, 3, bad.Analytics.DiagnosticIssues)
	assert.Equal(t, 100, bad.Analytics.Sent)
	require.NotNil(t, bad.Bounce)
	assert.Equal(t, 2, bad.Bounce.Bounces)
	assert.Equal(t, []string{"dom_bad"}, f.poller.calls)

	ttl := f.mr.TTL("mailwarden:monitor:result:dom_bad")
	assert.Equal(t, 7*24*time.Hour, ttl)

	update := f.domains.updates["dom_good"]
	assert.Equal(t, 82.5, update.ReputationScore)
	assert.Equal(t, float64(100), update.HealthScore)
	assert.Equal(t, testNow, update.MonitoredAt)

	f.publisher.AssertNumberOfCalls(t, "PublishDomainNeedsAttention", 1)
	assert.ElementsMatch(t, []models.TrainingScope{{DomainID: "dom_good"}, {DomainID: "dom_bad"}}, f.trainer.scopes)
}

func TestRun_DomainFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t)
	f.trainer.fail["dom_bad"] = errors.New("database unavailable")
	f.poller.err = errors.New("connection refused")
	ctx := context.Background()

	summary, err := f.svc.ForceRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	bad, err := f.store.GetResult(ctx, "dom_bad")
	require.NoError(t, err)
	assert.Contains(t, bad.Error, "database unavailable")

	good, err := f.store.GetResult(ctx, "dom_good")
	require.NoError(t, err)
	assert.Empty(t, good.Error)
	_, updated := f.domains.updates["dom_good"]
	assert.True(t, updated)
}

func TestRun_NoActiveSendersIsNotAFailure(t *testing.T) {
	f := newFixture(t)
	f.expectAttention("dom_bad")
	f.trainer.fail["dom_good"] = mwerrors.ErrNoActiveSenders

	summary, err := f.svc.ForceRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Failed)
	for _, r := range summary.Results {
		if r.DomainID == "dom_good" {
			assert.Nil(t, r.Training)
			assert.Equal(t, float64(100), r.HealthScore)
		}
	}
}

func TestRun_BounceFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.expectAttention("dom_bad")
	f.poller.err = errors.New("connection refused")

	_, err := f.svc.ForceRun(context.Background())
	require.NoError(t, err)

	bad, err := f.store.GetResult(context.Background(), "dom_bad")
	require.NoError(t, err)
	assert.Empty(t, bad.Error)
	assert.Contains(t, bad.BounceError, "connection refused")
}

func TestRun_InterruptedBetweenDomains(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.svc.ForceRun(ctx)
	if err != nil {
		// the lock or stamp call may observe the cancellation first
		return
	}
	assert.True(t, summary.Interrupted)
	assert.Empty(t, summary.Results)
}

func TestRunIfDue_ResumesInterruptedRun(t *testing.T) {
	f := newFixture(t)
	f.expectAttention("dom_bad")
	f.svc.cfg.Workers = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.trainer.onRun = func(scope models.TrainingScope) {
		if scope.DomainID == "dom_bad" {
			cancel()
		}
	}

	summary, err := f.svc.RunIfDue(ctx)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.True(t, summary.Interrupted)

	last, err := f.store.LastRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, last, "an interrupted run is not complete")

	f.trainer.onRun = nil
	f.trainer.scopes = nil
	f.now = testNow.Add(time.Hour)
	summary, err = f.svc.RunIfDue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary, "the unfinished run is due again")
	assert.True(t, summary.Resumed)
	assert.False(t, summary.Interrupted)
	assert.Equal(t, 1, summary.AlreadyDone)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, "dom_bad", summary.Results[0].DomainID)
	assert.Equal(t, []models.TrainingScope{{DomainID: "dom_bad"}}, f.trainer.scopes)

	last, err = f.store.LastRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, testNow, *last)

	summary, err = f.svc.RunIfDue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, summary)
}

func TestBlacklistProbeFlagsAttention(t *testing.T) {
	f := newFixture(t)
	f.expectAttention("dom_bad")
	f.expectAttention("dom_good")
	f.svc.probe = probeFunc(func(ctx context.Context, domain string) (BlacklistReport, error) {
		if domain == "good.io" {
			return BlacklistReport{Major: 1}, nil
		}
		return BlacklistReport{}, nil
	})

	_, err := f.svc.ForceRun(context.Background())
	require.NoError(t, err)

	good, err := f.store.GetResult(context.Background(), "dom_good")
	require.NoError(t, err)
	assert.True(t, good.NeedsAttention)
	require.NotNil(t, good.Blacklist)
	assert.True(t, good.Blacklist.Listed())
}

func TestBlacklistScanIsBounded(t *testing.T) {
	f := newFixture(t)
	f.expectAttention("dom_bad")
	f.svc.cfg.ProbeTimeout = 20 * time.Millisecond
	f.svc.probe = probeFunc(func(ctx context.Context, domain string) (BlacklistReport, error) {
		<-ctx.Done()
		return BlacklistReport{}, ctx.Err()
	})

	summary, err := f.svc.ForceRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.False(t, summary.Interrupted)
	assert.Len(t, summary.Results, 2)
	for _, result := range summary.Results {
		assert.Empty(t, result.Error)
		assert.Nil(t, result.Blacklist)
	}
}

type probeFunc func(ctx context.Context, domain string) (BlacklistReport, error)

func (p probeFunc) Probe(ctx context.Context, domain string) (BlacklistReport, error) {
	return p(ctx, domain)
}

func TestDelayedChecks(t *testing.T) {
	f := newFixture(t)
	f.expectAttention("dom_bad")
	ctx := context.Background()

	require.NoError(t, f.svc.ScheduleDelayedCheck(ctx, "dom_good", testNow.Add(-time.Minute)))
	require.NoError(t, f.svc.ScheduleDelayedCheck(ctx, "dom_bad", testNow.Add(time.Hour)))
	assert.ErrorIs(t, f.svc.ScheduleDelayedCheck(ctx, "dom_missing", testNow), mwerrors.ErrDomainNotFound)

	results, err := f.svc.ProcessDueChecks(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "dom_good", results[0].DomainID)

	results, err = f.svc.ProcessDueChecks(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)

	pending, err := f.store.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	f.now = testNow.Add(2 * time.Hour)
	results, err = f.svc.ProcessDueChecks(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "dom_bad", results[0].DomainID)
}

func TestGetTrainingStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.svc.GetTrainingStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, status.LastRun)

	require.NoError(t, f.store.FinishRun(ctx, testNow.Add(-time.Hour)))
	status, err = f.svc.GetTrainingStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, testNow.Add(23*time.Hour), status.NextRunEstimate)
	assert.Equal(t, int64(2), status.ActiveSenderCount)
	assert.Equal(t, "automatic", status.CurrentMode)
}

func TestGetDomainStatus(t *testing.T) {
	f := newFixture(t)
	f.expectAttention("dom_bad")
	ctx := context.Background()

	onDemand, err := f.svc.GetDomainStatus(ctx, "dom_bad")
	require.NoError(t, err)
	assert.Equal(t, int64(300), onDemand.Limit)
	assert.Equal(t, 100, onDemand.TotalSent)
	assert.InDelta(t, 80, onDemand.DeliveryRate, 0.001)
	assert.InDelta(t, 20, onDemand.BounceRate, 0.001)
	assert.Equal(t, "poor", onDemand.HealthStatus)

	_, err = f.svc.ForceRun(ctx)
	require.NoError(t, err)

	stored, err := f.svc.GetDomainStatus(ctx, "dom_bad")
	require.NoError(t, err)
	assert.InDelta(t, 12, stored.ComplaintRate, 0.001)
	assert.Equal(t, "poor", stored.HealthStatus)

	_, err = f.svc.GetDomainStatus(ctx, "dom_missing")
	assert.ErrorIs(t, err, mwerrors.ErrDomainNotFound)
}
