package cron

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/customeros/mailwarden/config"
	cron_config "github.com/customeros/mailwarden/internal/cron/config"
	mwerrors "github.com/customeros/mailwarden/internal/errors"
	"github.com/customeros/mailwarden/internal/logger"
	"github.com/customeros/mailwarden/internal/tracing"
	"github.com/customeros/mailwarden/services/monitor"
)

const (
	// GroupMonitor serializes jobs touching domain health and sender limits
	GroupMonitor = "monitor"

	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second
)

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupMonitor: new(sync.Mutex),
	},
}

// Monitor is the part of the monitoring service driven by cron.
type Monitor interface {
	RunIfDue(ctx context.Context) (*monitor.RunSummary, error)
	ProcessDueChecks(ctx context.Context) ([]monitor.MonitoringResult, error)
}

// CounterResetter zeroes the per-sender daily send counters.
type CounterResetter interface {
	ResetDailyCounters(ctx context.Context) (int64, error)
}

type CronManager struct {
	cfg      *config.Config
	log      logger.Logger
	cron     *cronv3.Cron
	k8s      kubernetes.Interface
	stopCh   chan struct{}
	stopOnce sync.Once
	jobIDs   map[string]cronv3.EntryID
	monitor  Monitor
	counters CounterResetter
}

func NewCronManager(cfg *config.Config, log logger.Logger, k8s kubernetes.Interface, monitorService Monitor, counters CounterResetter) *CronManager {
	return &CronManager{
		cfg:      cfg,
		log:      log,
		k8s:      k8s,
		stopCh:   make(chan struct{}),
		jobIDs:   make(map[string]cronv3.EntryID),
		monitor:  monitorService,
		counters: counters,
	}
}

// Start initializes and starts the cron manager with leader election
// If k8s is nil, it will start in local mode without leader election
func (cm *CronManager) Start(podName, namespace string) error {
	if cm.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		cm.log.Info("Starting cron manager in local mode")
		return cm.StartCron()
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      "mailwarden-cron-leader",
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	errCh := make(chan error, 1)

	go func() {
		le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   LeaseDuration,
			RenewDeadline:   RenewDeadline,
			RetryPeriod:     RetryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					if err := cm.StartCron(); err != nil {
						cm.log.Errorf("Could not start crons as leader: %v", err)
					}
				},
				OnStoppedLeading: func() {
					cm.log.Info("Leader lost - stopping crons")
					cm.Stop()
				},
				OnNewLeader: func(identity string) {
					cm.log.Infof("New leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}

		le.Run(context.Background())
	}()

	// Wait briefly to see if leader election fails immediately
	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		return cm.StartCron()
	case <-time.After(5 * time.Second):
	}

	return nil
}

// Stop gracefully stops the cron manager, waiting for running jobs
func (cm *CronManager) Stop() {
	cm.stopOnce.Do(func() {
		if cm.cron != nil {
			cm.log.Info("Stopping cron manager")
			<-cm.cron.Stop().Done()
		}
		close(cm.stopCh)
	})
}

func (cm *CronManager) addJob(c *cronv3.Cron, name, schedule string, job func()) error {
	if schedule == "" {
		cm.log.Infof("Cron job %s disabled", name)
		return nil
	}
	id, err := c.AddFunc(schedule, func() {
		defer tracing.RecoverAndLogToJaeger(cm.log)
		job()
	})
	if err != nil {
		return err
	}
	cm.jobIDs[name] = id
	cm.log.Infof("Registered %s job with schedule: %s", name, schedule)
	return nil
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron, cronConfig cron_config.Config) error {
	podName := os.Getenv("POD_NAME")
	if podName == "" {
		podName = "local"
	}

	if err := cm.addJob(c, "heartbeat", cronConfig.CronScheduleHeartbeat, func() {
		cm.log.Debugf("Cron heartbeat from pod: %s", podName)
	}); err != nil {
		return err
	}

	if cm.monitor != nil {
		if err := cm.addJob(c, "monitor", cronConfig.CronScheduleMonitor, withLock(GroupMonitor, cm.runMonitor)); err != nil {
			return err
		}
		if err := cm.addJob(c, "delayed_checks", cronConfig.CronScheduleDelayedChecks, cm.processDelayedChecks); err != nil {
			return err
		}
	}

	if cm.counters != nil {
		if err := cm.addJob(c, "reset_counters", cronConfig.CronScheduleResetCounters, withLock(GroupMonitor, cm.resetDailyCounters)); err != nil {
			return err
		}
	}
	return nil
}

func withLock(group string, job func()) func() {
	return func() {
		jobLocks.locks[group].Lock()
		defer jobLocks.locks[group].Unlock()
		job()
	}
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() error {
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		return err
	}

	cm.log.Info("Starting cron manager")
	c := cronv3.New(
		cronv3.WithSeconds(),
		cronv3.WithLocation(time.UTC),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	)
	if err := cm.registerJobs(c, cronConfig); err != nil {
		return err
	}
	c.Start()
	cm.cron = c
	return nil
}

func (cm *CronManager) runMonitor() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.runMonitor")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	summary, err := cm.monitor.RunIfDue(ctx)
	if errors.Is(err, mwerrors.ErrRunInProgress) {
		cm.log.Info("Monitoring run already in progress on another instance")
		return
	}
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Monitoring run failed: %v", err)
		return
	}
	if summary == nil {
		cm.log.Debug("Monitoring run not due")
		return
	}
	cm.log.Infof("Monitoring run finished: %d domains, %d failed, %d need attention",
		summary.Domains, summary.Failed, summary.NeedsAttention)
}

func (cm *CronManager) processDelayedChecks() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.processDelayedChecks")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	results, err := cm.monitor.ProcessDueChecks(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to process delayed checks: %v", err)
		return
	}
	if len(results) > 0 {
		cm.log.Infof("Processed %d delayed domain checks", len(results))
	}
}

func (cm *CronManager) resetDailyCounters() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.resetDailyCounters")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	reset, err := cm.counters.ResetDailyCounters(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to reset daily counters: %v", err)
		return
	}
	cm.log.Infof("Reset daily counters for %d senders", reset)
}
