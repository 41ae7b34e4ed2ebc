// Package training recomputes sender reputation and retunes daily send limits.
package training

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/customeros/mailwarden/config"
	"github.com/customeros/mailwarden/dto"
	"github.com/customeros/mailwarden/interfaces"
	mwerrors "github.com/customeros/mailwarden/internal/errors"
	"github.com/customeros/mailwarden/internal/enum"
	"github.com/customeros/mailwarden/internal/logger"
	"github.com/customeros/mailwarden/internal/metrics"
	"github.com/customeros/mailwarden/internal/models"
	"github.com/customeros/mailwarden/internal/tracing"
	"github.com/customeros/mailwarden/internal/utils"
	"github.com/customeros/mailwarden/services/logreader"
	"github.com/customeros/mailwarden/services/reputation"
)

type Engine struct {
	log     logger.Logger
	cfg     *config.TrainingConfig
	logCfg  *config.LogReaderConfig
	senders interfaces.SenderRepository
	domains interfaces.DomainRepository
	configs interfaces.TrainingConfigRepository
	events  logreader.EventSource
	locks   *keyedMutex
	now     func() time.Time
}

func NewEngine(log logger.Logger, cfg *config.TrainingConfig, logCfg *config.LogReaderConfig, senders interfaces.SenderRepository, domains interfaces.DomainRepository, configs interfaces.TrainingConfigRepository, events logreader.EventSource) *Engine {
	return &Engine{
		log:     log,
		cfg:     cfg,
		logCfg:  logCfg,
		senders: senders,
		domains: domains,
		configs: configs,
		events:  events,
		locks:   newKeyedMutex(),
		now:     utils.Now,
	}
}

// WithClock replaces the clock used for training timestamps and manual growth.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// ResolveSettings reads the tenant's policy, falling back to the system-wide row and then to the environment defaults.
func (e *Engine) ResolveSettings(ctx context.Context, tenant string) (Settings, error) {
	settings := DefaultSettings(e.cfg)
	if e.configs != nil {
		row, err := e.configs.Get(ctx, tenant)
		if err != nil {
			return Settings{}, errors.Wrap(err, "load training config")
		}
		settings = settings.Overlay(row)
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// RunTraining resolves the policy for the scope and runs one training pass.
func (e *Engine) RunTraining(ctx context.Context, scope models.TrainingScope) (*dto.TrainingResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TrainingEngine.RunTraining")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("scope", scope.Kind())

	tenant := scope.Tenant
	if scope.DomainID != "" && tenant == "" {
		domain, err := e.domains.GetByID(ctx, scope.DomainID)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		tenant = domain.Tenant
	}

	settings, err := e.ResolveSettings(ctx, tenant)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return e.Run(ctx, scope, settings)
}

// Run trains every active sender of the scope under one policy. Per-sender failures
// are collected in the result; only configuration problems abort the run.
func (e *Engine) Run(ctx context.Context, scope models.TrainingScope, settings Settings) (*dto.TrainingResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TrainingEngine.Run")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, scope.Tenant)
	span.LogFields(tracingLog.String("mode", settings.Mode.String()))

	if err := settings.Validate(); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	senders, err := e.senders.ListActive(ctx, scope)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "list active senders")
	}
	if len(senders) == 0 {
		metrics.TrainingRuns.WithLabelValues(settings.Mode.String(), "aborted").Inc()
		err := errors.Wrapf(mwerrors.ErrNoActiveSenders, "scope %s", scope.Kind())
		tracing.TraceErr(span, err)
		return nil, err
	}

	groups, err := e.groupByDomain(ctx, senders)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	run := &runState{result: &dto.TrainingResult{Mode: settings.Mode.String(), Errors: []string{}}}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for _, group := range groups {
		g.Go(func() error {
			e.trainGroup(gctx, group, settings, run)
			return nil
		})
	}
	_ = g.Wait()

	result := run.result
	sort.Strings(result.Errors)
	metrics.TrainingRuns.WithLabelValues(settings.Mode.String(), "completed").Inc()
	span.LogFields(
		tracingLog.Int("result.processed", result.Processed),
		tracingLog.Int("result.updated", result.Updated),
		tracingLog.Int("result.errors", len(result.Errors)),
	)
	e.log.Infof("Training run (%s, %s): %d processed, %d updated, %d errors",
		settings.Mode, scope.Kind(), result.Processed, result.Updated, len(result.Errors))
	return result, nil
}

func (e *Engine) workers() int {
	if e.cfg.Workers > 0 {
		return e.cfg.Workers
	}
	return 1
}

type runState struct {
	mu     sync.Mutex
	result *dto.TrainingResult
}

func (r *runState) record(updated bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Processed++
	if updated {
		r.result.Updated++
	}
	if err != nil {
		r.result.Errors = append(r.result.Errors, err.Error())
	}
}

// senderGroup holds the senders whose logs come from the same domain.
type senderGroup struct {
	domain  *models.Domain
	senders []models.Sender
}

func (e *Engine) groupByDomain(ctx context.Context, senders []models.Sender) ([]*senderGroup, error) {
	var ids []string
	byID := make(map[string]*senderGroup)
	var groups []*senderGroup
	for _, sender := range senders {
		group, ok := byID[sender.DomainID]
		if !ok {
			group = &senderGroup{}
			byID[sender.DomainID] = group
			groups = append(groups, group)
			if sender.DomainID != "" {
				ids = append(ids, sender.DomainID)
			}
		}
		group.senders = append(group.senders, sender)
	}

	if len(ids) > 0 {
		domains, err := e.domains.GetByIDs(ctx, ids)
		if err != nil {
			return nil, errors.Wrap(err, "load sender domains")
		}
		for i := range domains {
			if group, ok := byID[domains[i].ID]; ok {
				group.domain = &domains[i]
			}
		}
	}
	return groups, nil
}

func (e *Engine) trainGroup(ctx context.Context, group *senderGroup, settings Settings, run *runState) {
	var analytics *logreader.Analytics
	var readErr error
	if settings.Mode == enum.TrainingAutomatic {
		analytics, readErr = e.readAnalytics(ctx, group, settings.LookbackHours)
	}

	for _, sender := range group.senders {
		if ctx.Err() != nil {
			run.record(false, errors.Wrapf(ctx.Err(), "sender %s", sender.Email))
			continue
		}

		var updated bool
		var err error
		switch {
		case readErr != nil:
			err = errors.Wrapf(readErr, "sender %s", sender.Email)
		case settings.Mode == enum.TrainingManual:
			updated, err = e.trainManual(ctx, sender, settings)
		default:
			updated, err = e.trainAutomatic(ctx, sender, analytics, settings)
		}

		result := "updated"
		if err != nil {
			result = "error"
			e.log.Warnf("Training failed for sender %s: %v", sender.Email, err)
		} else if !updated {
			result = "unchanged"
		}
		metrics.SendersTrained.WithLabelValues(settings.Mode.String(), result).Inc()
		run.record(updated, err)
	}
}

// readAnalytics aggregates the accounting logs of a domain. Domains may override the
// accounting glob with their own list.
func (e *Engine) readAnalytics(ctx context.Context, group *senderGroup, lookbackHours int) (*logreader.Analytics, error) {
	globs := []string{e.logCfg.AccountingGlob}
	filter := ""
	if group.domain != nil {
		filter = group.domain.Domain
		if len(group.domain.LogGlobs) > 0 {
			globs = group.domain.LogGlobs
		}
	} else if len(group.senders) > 0 {
		filter = utils.ExtractDomainFromEmail(group.senders[0].Email)
	}

	analytics := logreader.NewAnalytics()
	for _, glob := range globs {
		seq, err := e.events.Events(ctx, logreader.Query{
			Pattern:       glob,
			Layout:        enum.LayoutAccounting,
			LookbackHours: lookbackHours,
			Domain:        filter,
		})
		if err != nil {
			return nil, err
		}
		analytics.AddAll(seq)
	}
	return analytics, nil
}

func (e *Engine) trainAutomatic(ctx context.Context, sender models.Sender, analytics *logreader.Analytics, settings Settings) (bool, error) {
	counters, ok := analytics.Origin(sender.Email)
	if !ok || counters.Sent == 0 {
		return false, errors.Wrapf(mwerrors.ErrNoLogData, "sender %s", sender.Email)
	}

	m := counters.Metrics()
	score := reputation.Score(m)
	band := reputation.Band(score, settings.Thresholds)

	// the limit is derived from the stored value, read under the lock, so
	// overlapping runs on the same sender compound instead of overwriting
	unlock := e.locks.Lock(sender.ID)
	defer unlock()
	current, err := e.senders.GetByID(ctx, sender.ID)
	if err != nil {
		return false, errors.Wrapf(err, "sender %s", sender.Email)
	}
	limit := AutomaticLimit(current.DailyLimit, band, settings.AutoMinLimit, settings.AutoMaxLimit)
	now := e.now()

	data := models.JSONMap{
		"mode":          settings.Mode.String(),
		"score":         score,
		"band":          band.String(),
		"previousLimit": current.DailyLimit,
		"newLimit":      limit,
		"sent":          m.TotalSent,
		"delivered":     m.TotalDelivered,
		"bounced":       m.TotalBounced,
		"complaints":    m.TotalComplaints,
		"deliveryRate":  m.DeliveryRate,
		"bounceRate":    m.BounceRate,
		"complaintRate": m.ComplaintRate,
		"trainedAt":     now.Format(time.RFC3339),
	}

	if err := e.senders.UpdateTraining(ctx, sender.ID, score, limit, data, now); err != nil {
		return false, errors.Wrapf(err, "sender %s", sender.Email)
	}
	return limit != current.DailyLimit, nil
}

func (e *Engine) trainManual(ctx context.Context, sender models.Sender, settings Settings) (bool, error) {
	now := e.now()
	limit := ManualLimit(settings, sender.CreatedAt, now)

	unlock := e.locks.Lock(sender.ID)
	defer unlock()
	current, err := e.senders.GetByID(ctx, sender.ID)
	if err != nil {
		return false, errors.Wrapf(err, "sender %s", sender.Email)
	}

	raised, err := e.senders.RatchetLimit(ctx, sender.ID, limit)
	if err != nil {
		return false, errors.Wrapf(err, "sender %s", sender.Email)
	}

	data := models.JSONMap{
		"mode":          settings.Mode.String(),
		"previousLimit": current.DailyLimit,
		"computedLimit": limit,
		"raised":        raised,
		"ageDays":       int(now.Sub(sender.CreatedAt).Hours() / 24),
		"trainedAt":     now.Format(time.RFC3339),
	}
	if err := e.senders.RecordTraining(ctx, sender.ID, data, now); err != nil {
		return raised, errors.Wrapf(err, "sender %s", sender.Email)
	}
	return raised, nil
}

// GetAllowance reports what campaign dispatch may still send today for a sender.
func (e *Engine) GetAllowance(ctx context.Context, email string) (*dto.Allowance, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TrainingEngine.GetAllowance")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	email = utils.NormalizeEmail(email)
	if email == "" {
		return nil, mwerrors.ErrInvalidEmail
	}
	sender, err := e.senders.GetByEmail(ctx, email)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &dto.Allowance{
		Email:            sender.Email,
		DailyLimit:       sender.DailyLimit,
		CurrentDailySent: sender.CurrentDailySent,
		Remaining:        sender.RemainingToday(),
	}, nil
}

// ResetDailyCounters zeroes current_daily_sent for every sender.
func (e *Engine) ResetDailyCounters(ctx context.Context) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TrainingEngine.ResetDailyCounters")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	n, err := e.senders.ResetDailyCounters(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, errors.Wrap(err, "reset daily counters")
	}
	e.log.Infof("Reset daily counters for %d senders", n)
	return n, nil
}

// Status summarizes the training state of all active senders. The next run is
// estimated from the latest training stamp plus interval.
func (e *Engine) Status(ctx context.Context, interval time.Duration) (*dto.TrainingStatus, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TrainingEngine.Status")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	stats, err := e.senders.ActiveStats(ctx, models.TrainingScope{})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "sender stats")
	}
	lastRun, err := e.senders.LastTrainingAt(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "last training")
	}
	settings, err := e.ResolveSettings(ctx, "")
	if err != nil {
		return nil, err
	}

	next := e.now()
	if lastRun != nil {
		if due := lastRun.Add(interval); due.After(next) {
			next = due
		}
	}
	return &dto.TrainingStatus{
		LastRun:           lastRun,
		NextRunEstimate:   next,
		ActiveSenderCount: stats.ActiveCount,
		AvgReputation:     stats.AvgReputation,
		CurrentMode:       settings.Mode.String(),
	}, nil
}
