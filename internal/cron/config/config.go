package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Monitoring due check, hourly; the run itself happens once per MONITOR_RUN_INTERVAL
	CronScheduleMonitor string `env:"CRON_SCHEDULE_MONITOR" envDefault:"0 0 * * * *"`
	// Delayed domain checks, every minute
	CronScheduleDelayedChecks string `env:"CRON_SCHEDULE_DELAYED_CHECKS" envDefault:"30 * * * * *"`
	// Sender daily counter reset, daily at midnight UTC
	CronScheduleResetCounters string `env:"CRON_SCHEDULE_RESET_COUNTERS" envDefault:"0 0 0 * * *"`
}
