// Package monitor runs the daily domain health pass and the delayed single-domain checks.
package monitor

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
	"github.com/customeros/mailwarden/services/bounce"
	"github.com/customeros/mailwarden/services/logreader"
	"github.com/customeros/mailwarden/services/reputation"
	"github.com/customeros/mailwarden/services/training"
)

// Trainer is the part of the training engine the monitor drives.
type Trainer interface {
	ResolveSettings(ctx context.Context, tenant string) (training.Settings, error)
	Run(ctx context.Context, scope models.TrainingScope, settings training.Settings) (*dto.TrainingResult, error)
	Status(ctx context.Context, interval time.Duration) (*dto.TrainingStatus, error)
}

// BouncePoller processes one domain's bounce mailbox.
type BouncePoller interface {
	ProcessDomain(ctx context.Context, domain *models.Domain) (*bounce.PollResult, error)
}

type MonitoringResult struct {
	DomainID        string              `json:"domainId"`
	Domain          string              `json:"domain"`
	Tenant          string              `json:"tenant"`
	Training        *dto.TrainingResult `json:"training,omitempty"`
	Bounce          *bounce.PollResult  `json:"bounce,omitempty"`
	BounceError     string              `json:"bounceError,omitempty"`
	Analytics       logreader.Counters  `json:"analytics"`
	Rates           reputation.Metrics  `json:"rates"`
	Blacklist       *BlacklistReport    `json:"blacklist,omitempty"`
	ReputationScore float64             `json:"reputationScore"`
	HealthScore     float64             `json:"healthScore"`
	HealthStatus    enum.HealthStatus   `json:"healthStatus"`
	NeedsAttention  bool                `json:"needsAttention"`
	Reasons         []string            `json:"reasons,omitempty"`
	Error           string              `json:"error,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
}

type RunSummary struct {
	StartedAt      time.Time          `json:"startedAt"`
	FinishedAt     time.Time          `json:"finishedAt"`
	Domains        int                `json:"domains"`
	Failed         int                `json:"failed"`
	NeedsAttention int                `json:"needsAttention"`
	Interrupted    bool               `json:"interrupted"`
	Resumed        bool               `json:"resumed"`
	AlreadyDone    int                `json:"alreadyDone"`
	Results        []MonitoringResult `json:"results"`
}

type Service struct {
	log       logger.Logger
	cfg       *config.MonitorConfig
	logCfg    *config.LogReaderConfig
	store     *Store
	domains   interfaces.DomainRepository
	senders   interfaces.SenderRepository
	trainer   Trainer
	poller    BouncePoller
	events    logreader.EventSource
	probe     BlacklistProbe
	publisher interfaces.EventPublisher
	owner     string
	now       func() time.Time
}

type Option func(*Service)

// WithBlacklistProbe enables the blacklist scan of every monitored domain.
func WithBlacklistProbe(probe BlacklistProbe) Option {
	return func(s *Service) { s.probe = probe }
}

func WithPublisher(publisher interfaces.EventPublisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(log logger.Logger, cfg *config.MonitorConfig, logCfg *config.LogReaderConfig, store *Store,
	domains interfaces.DomainRepository, senders interfaces.SenderRepository, trainer Trainer, poller BouncePoller,
	events logreader.EventSource, opts ...Option) *Service {
	s := &Service{
		log:     log,
		cfg:     cfg,
		logCfg:  logCfg,
		store:   store,
		domains: domains,
		senders: senders,
		trainer: trainer,
		poller:  poller,
		events:  events,
		owner:   utils.GenerateID("monitor"),
		now:     utils.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) thresholds() reputation.AttentionThresholds {
	return reputation.AttentionThresholds{
		MinHealthScore:    s.cfg.MinHealthScore,
		MinDeliveryRate:   s.cfg.MinDeliveryRate,
		MaxBounceRate:     s.cfg.MaxBounceRate,
		MaxComplaintRate:  s.cfg.MaxComplaintRate,
		MaxFeedbackLoops:  s.cfg.MaxFeedbackLoops,
		MaxDiagnosticHits: s.cfg.MaxDiagnosticHits,
	}
}

// RunIfDue performs a full run when the last one is at least RunInterval old.
// It returns nil without error when no run is due.
func (s *Service) RunIfDue(ctx context.Context) (*RunSummary, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorService.RunIfDue")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	return s.lockedRun(ctx, span, false)
}

// ForceRun performs a full run regardless of the last run stamp.
func (s *Service) ForceRun(ctx context.Context) (*RunSummary, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorService.ForceRun")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	return s.lockedRun(ctx, span, true)
}

func (s *Service) lockedRun(ctx context.Context, span opentracing.Span, force bool) (*RunSummary, error) {
	acquired, err := s.store.AcquireLock(ctx, s.owner)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if !acquired {
		span.LogFields(tracingLog.Bool("lock.acquired", false))
		return nil, mwerrors.ErrRunInProgress
	}
	defer func() {
		if err := s.store.ReleaseLock(context.WithoutCancel(ctx), s.owner); err != nil {
			s.log.Warnf("Unable to release monitor lock: %v", err)
		}
	}()

	now := s.now()
	current, err := s.store.CurrentRun(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	// an interrupted run is always due and continues with the domains it has not finished
	resume := current != nil && !force
	startedAt := now
	done := map[string]bool{}
	if resume {
		startedAt = *current
		if done, err = s.store.DoneDomains(ctx); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
	} else {
		if !force {
			lastRun, err := s.store.LastRun(ctx)
			if err != nil {
				tracing.TraceErr(span, err)
				return nil, err
			}
			if lastRun != nil && now.Sub(*lastRun) < s.cfg.RunInterval {
				span.LogFields(tracingLog.Bool("run.due", false))
				return nil, nil
			}
		}
		if err := s.store.BeginRun(ctx, now); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
	}
	span.LogFields(tracingLog.Bool("run.resumed", resume))

	summary, err := s.runAll(ctx, done)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	summary.Resumed = resume
	if summary.Interrupted {
		s.log.Warnf("Monitoring run interrupted, %d domains left for the next run",
			summary.Domains-summary.AlreadyDone-len(summary.Results))
		return summary, nil
	}
	if err := s.store.FinishRun(context.WithoutCancel(ctx), startedAt); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return summary, nil
}

// runAll processes every active domain not in done, recording each completed domain
// so an interrupted run can be resumed.
func (s *Service) runAll(ctx context.Context, done map[string]bool) (*RunSummary, error) {
	started := s.now()
	timer := time.Now()
	defer func() { metrics.MonitorDuration.Observe(time.Since(timer).Seconds()) }()

	domains, err := s.domains.GetActiveDomains(ctx, "")
	if err != nil {
		return nil, errors.Wrap(err, "list active domains")
	}

	settings := s.resolveTenants(ctx, domains)

	summary := &RunSummary{StartedAt: started, Domains: len(domains)}
	var mu sync.Mutex
	collect := func(result *MonitoringResult) {
		mu.Lock()
		defer mu.Unlock()
		summary.Results = append(summary.Results, *result)
		if result.Error != "" {
			summary.Failed++
		}
		if result.NeedsAttention {
			summary.NeedsAttention++
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(s.workers())
	for i := range domains {
		domain := &domains[i]
		if done[domain.ID] {
			summary.AlreadyDone++
			continue
		}
		if ctx.Err() != nil {
			summary.Interrupted = true
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			resolved := settings[domain.Tenant]
			collect(s.processDomain(ctx, domain, resolved.settings, resolved.err))
			if ctx.Err() != nil {
				return nil
			}
			if err := s.store.MarkDomainDone(ctx, domain.ID); err != nil {
				s.log.Warnf("Unable to record progress for %s: %v", domain.Domain, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		summary.Interrupted = true
	}

	sort.Slice(summary.Results, func(i, j int) bool { return summary.Results[i].Domain < summary.Results[j].Domain })
	summary.FinishedAt = s.now()
	s.log.Infof("Monitoring run: %d domains, %d failed, %d need attention",
		summary.Domains, summary.Failed, summary.NeedsAttention)
	return summary, nil
}

func (s *Service) probeTimeout() time.Duration {
	if s.cfg.ProbeTimeout > 0 {
		return s.cfg.ProbeTimeout
	}
	return 30 * time.Second
}

func (s *Service) workers() int {
	if s.cfg.Workers > 0 {
		return s.cfg.Workers
	}
	return 1
}

type resolvedSettings struct {
	settings training.Settings
	err      error
}

// resolveTenants reads each tenant's training policy once for the whole run.
func (s *Service) resolveTenants(ctx context.Context, domains []models.Domain) map[string]resolvedSettings {
	out := make(map[string]resolvedSettings)
	for _, domain := range domains {
		if _, ok := out[domain.Tenant]; ok {
			continue
		}
		settings, err := s.trainer.ResolveSettings(ctx, domain.Tenant)
		out[domain.Tenant] = resolvedSettings{settings: settings, err: err}
	}
	return out
}

// processDomain never fails: errors end up in the persisted result.
func (s *Service) processDomain(ctx context.Context, domain *models.Domain, settings training.Settings, settingsErr error) *MonitoringResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorService.processDomain")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, domain.Tenant)
	tracing.TagEntity(span, domain.ID)

	result := &MonitoringResult{
		DomainID:  domain.ID,
		Domain:    domain.Domain,
		Tenant:    domain.Tenant,
		CreatedAt: s.now(),
	}

	if err := s.evaluate(ctx, domain, settings, settingsErr, result); err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("Monitoring failed for domain %s: %v", domain.Domain, err)
		result.Error = err.Error()
	}

	if err := s.store.SaveResult(ctx, result); err != nil {
		s.log.Warnf("Unable to persist monitoring result for %s: %v", domain.Domain, err)
	}
	return result
}

func (s *Service) evaluate(ctx context.Context, domain *models.Domain, settings training.Settings, settingsErr error, result *MonitoringResult) error {
	if settingsErr != nil {
		return settingsErr
	}

	trained, err := s.trainer.Run(ctx, models.TrainingScope{DomainID: domain.ID}, settings)
	switch {
	case errors.Is(err, mwerrors.ErrNoActiveSenders):
		s.log.Debugf("Domain %s has no active senders, skipping training", domain.Domain)
	case err != nil:
		return errors.Wrap(err, "training")
	default:
		result.Training = trained
	}

	if domain.HasBounceMailbox() && s.poller != nil {
		polled, err := s.poller.ProcessDomain(ctx, domain)
		if err != nil {
			s.log.Warnf("Bounce mailbox of %s unavailable: %v", domain.Domain, err)
			result.BounceError = err.Error()
		} else {
			result.Bounce = polled
		}
	}

	counters, err := s.readAnalytics(ctx, domain)
	if err != nil {
		return errors.Wrap(err, "read logs")
	}
	result.Analytics = counters
	result.Rates = counters.Metrics()

	input := counters.HealthInput()
	if s.probe != nil {
		probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout())
		report, err := s.probe.Probe(probeCtx, domain.Domain)
		cancel()
		if err != nil {
			s.log.Warnf("Blacklist probe failed for %s: %v", domain.Domain, err)
		} else {
			result.Blacklist = &report
			input.BlacklistMajor = report.Major
		}
	}

	result.HealthScore = reputation.HealthScore(input)
	result.HealthStatus = reputation.HealthStatus(result.HealthScore)
	result.NeedsAttention, result.Reasons = reputation.NeedsAttention(result.HealthScore, input, s.thresholds())
	metrics.DomainHealth.WithLabelValues(domain.Domain).Set(result.HealthScore)

	stats, err := s.senders.ActiveStats(ctx, models.TrainingScope{DomainID: domain.ID})
	if err != nil {
		return errors.Wrap(err, "sender stats")
	}
	result.ReputationScore = stats.AvgReputation

	err = s.domains.UpdateHealth(ctx, domain.ID, models.DomainHealthUpdate{
		ReputationScore: result.ReputationScore,
		HealthScore:     result.HealthScore,
		HealthStatus:    result.HealthStatus,
		MonitoredAt:     result.CreatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "update domain health")
	}

	if result.NeedsAttention && s.publisher != nil {
		payload := dto.DomainNeedsAttention{
			DomainID:    domain.ID,
			Domain:      domain.Domain,
			HealthScore: result.HealthScore,
			Reasons:     result.Reasons,
		}
		if err := s.publisher.PublishDomainNeedsAttention(ctx, domain.Tenant, domain.ID, payload); err != nil {
			s.log.Warnf("Unable to publish attention event for %s: %v", domain.Domain, err)
		}
	}
	return nil
}

// readAnalytics merges the accounting, feedback-loop and diagnostic logs of a domain.
func (s *Service) readAnalytics(ctx context.Context, domain *models.Domain) (logreader.Counters, error) {
	accounting := []string{s.logCfg.AccountingGlob}
	if len(domain.LogGlobs) > 0 {
		accounting = domain.LogGlobs
	}

	type source struct {
		glob   string
		layout enum.LogLayout
	}
	var sources []source
	for _, glob := range accounting {
		sources = append(sources, source{glob, enum.LayoutAccounting})
	}
	if s.logCfg.FeedbackGlob != "" {
		sources = append(sources, source{s.logCfg.FeedbackGlob, enum.LayoutFeedback})
	}
	if s.logCfg.DiagnosticGlob != "" {
		sources = append(sources, source{s.logCfg.DiagnosticGlob, enum.LayoutDiagnostic})
	}

	analytics := logreader.NewAnalytics()
	for _, src := range sources {
		if src.glob == "" {
			continue
		}
		seq, err := s.events.Events(ctx, logreader.Query{
			Pattern:       src.glob,
			Layout:        src.layout,
			LookbackHours: s.cfg.LookbackHours,
			Domain:        domain.Domain,
		})
		if err != nil {
			return logreader.Counters{}, err
		}
		analytics.AddAll(seq)
	}
	return analytics.Total, nil
}

// ScheduleDelayedCheck queues an out-of-band check of one domain at the given time.
func (s *Service) ScheduleDelayedCheck(ctx context.Context, domainID string, at time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorService.ScheduleDelayedCheck")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, domainID)

	if _, err := s.domains.GetByID(ctx, domainID); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := s.store.ScheduleCheck(ctx, domainID, at); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	s.log.Infof("Scheduled delayed check for %s at %s", domainID, at.Format(time.RFC3339))
	return nil
}

// ProcessDueChecks claims and runs every delayed check that is due. Claimed checks of
// domains that no longer exist are dropped.
func (s *Service) ProcessDueChecks(ctx context.Context) ([]MonitoringResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorService.ProcessDueChecks")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	ids, err := s.store.ClaimDue(ctx, s.now())
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var results []MonitoringResult
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		domain, err := s.domains.GetByID(ctx, id)
		if err != nil {
			s.log.Warnf("Dropping delayed check for %s: %v", id, err)
			continue
		}
		settings, settingsErr := s.trainer.ResolveSettings(ctx, domain.Tenant)
		results = append(results, *s.processDomain(ctx, domain, settings, settingsErr))
	}
	span.LogFields(tracingLog.Int("result.checks", len(results)))
	return results, nil
}

// GetTrainingStatus reports the scheduler's view of training: the last full run and the next due time.
func (s *Service) GetTrainingStatus(ctx context.Context) (*dto.TrainingStatus, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorService.GetTrainingStatus")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	status, err := s.trainer.Status(ctx, s.cfg.RunInterval)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	lastRun, err := s.store.LastRun(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if lastRun != nil {
		status.LastRun = lastRun
		status.NextRunEstimate = lastRun.Add(s.cfg.RunInterval)
		if now := s.now(); status.NextRunEstimate.Before(now) {
			status.NextRunEstimate = now
		}
	}
	return status, nil
}

// GetDomainStatus combines the domain's send capacity with its latest monitoring result.
// Without a stored result the logs are read on demand.
func (s *Service) GetDomainStatus(ctx context.Context, domainID string) (*dto.DomainStatus, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MonitorService.GetDomainStatus")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, domainID)

	domain, err := s.domains.GetByID(ctx, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	stats, err := s.senders.ActiveStats(ctx, models.TrainingScope{DomainID: domain.ID})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	status := &dto.DomainStatus{
		DomainID:     domain.ID,
		Domain:       domain.Domain,
		Limit:        stats.TotalLimit,
		HealthStatus: domain.HealthStatus.String(),
	}

	stored, err := s.store.GetResult(ctx, domain.ID)
	if err != nil {
		s.log.Warnf("Unable to read monitoring result for %s: %v", domain.Domain, err)
	}
	var rates reputation.Metrics
	if stored != nil && stored.Error == "" {
		rates = stored.Rates
		status.HealthStatus = stored.HealthStatus.String()
	} else {
		counters, err := s.readAnalytics(ctx, domain)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		rates = counters.Metrics()
		if status.HealthStatus == "" {
			status.HealthStatus = reputation.HealthStatus(reputation.HealthScore(counters.HealthInput())).String()
		}
	}

	status.TotalSent = rates.TotalSent
	status.DeliveryRate = rates.DeliveryRate
	status.BounceRate = rates.BounceRate
	status.ComplaintRate = rates.ComplaintRate
	return status, nil
}
