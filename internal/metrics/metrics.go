package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LogEventsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailwarden_log_events_total",
			Help: "Log events accepted by the log reader.",
		},
		[]string{"layout", "type"},
	)
	LogLinesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailwarden_log_lines_skipped_total",
			Help: "Log lines dropped as malformed, out of window or filtered.",
		},
		[]string{"layout", "reason"},
	)
	BouncesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailwarden_bounces_processed_total",
			Help: "Bounce messages classified from polled mailboxes.",
		},
		[]string{"type"},
	)
	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailwarden_training_runs_total",
			Help: "Training runs by mode and outcome.",
		},
		[]string{"mode", "result"},
	)
	SendersTrained = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailwarden_senders_trained_total",
			Help: "Senders processed by training runs.",
		},
		[]string{"mode", "result"},
	)
	SuppressionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailwarden_suppression_checks_total",
			Help: "Suppression lookups by source of the answer.",
		},
		[]string{"source"},
	)
	MonitorDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailwarden_monitor_run_duration_seconds",
			Help:    "Duration of full monitoring runs.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)
	DomainHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mailwarden_domain_health_score",
			Help: "Last computed health score per domain.",
		},
		[]string{"domain"},
	)
)
