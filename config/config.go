package config

import (
	"time"
)

type AppConfig struct {
	APIPort     string `env:"PORT,required" envDefault:"12222"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	// base64 encoded 32 byte key used to decrypt bounce mailbox credentials
	SecretKey string `env:"MAILWARDEN_SECRET_KEY"`
}

type MailwardenDatabaseConfig struct {
	Host            string `env:"MAILWARDEN_POSTGRES_HOST,required"`
	Port            string `env:"MAILWARDEN_POSTGRES_PORT,required"`
	User            string `env:"MAILWARDEN_POSTGRES_USER,required"`
	DBName          string `env:"MAILWARDEN_POSTGRES_DB_NAME,required"`
	Password        string `env:"MAILWARDEN_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"MAILWARDEN_POSTGRES_DB_MAX_CONN" envDefault:"25"`
	MaxIdleConn     int    `env:"MAILWARDEN_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"MAILWARDEN_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"MAILWARDEN_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILWARDEN_POSTGRES_SSL_MODE" envDefault:"require"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
}

type StorageConfig struct {
	Endpoint        string `env:"STORAGE_ENDPOINT"`
	Region          string `env:"STORAGE_REGION" envDefault:"auto"`
	AccessKeyID     string `env:"STORAGE_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"STORAGE_ACCESS_KEY_SECRET"`
	ExportBucket    string `env:"STORAGE_SUPPRESSION_BUCKET" envDefault:"suppression-exports"`
}

// TrainingConfig holds the system-wide training defaults, used when no
// per-tenant row exists in training_configs.
type TrainingConfig struct {
	Mode               string  `env:"TRAINING_MODE" envDefault:"automatic"`
	LookbackHours      int     `env:"TRAINING_LOOKBACK_HOURS" envDefault:"24"`
	Workers            int     `env:"TRAINING_WORKERS" envDefault:"4"`
	ExcellentScore     float64 `env:"TRAINING_EXCELLENT_SCORE" envDefault:"90"`
	GoodScore          float64 `env:"TRAINING_GOOD_SCORE" envDefault:"75"`
	FairScore          float64 `env:"TRAINING_FAIR_SCORE" envDefault:"60"`
	PoorScore          float64 `env:"TRAINING_POOR_SCORE" envDefault:"40"`
	AutoMinLimit       int     `env:"TRAINING_AUTO_MIN_LIMIT" envDefault:"50"`
	AutoMaxLimit       int     `env:"TRAINING_AUTO_MAX_LIMIT" envDefault:"50000"`
	ManualStartLimit   int     `env:"TRAINING_MANUAL_START_LIMIT" envDefault:"50"`
	ManualIncreasePct  float64 `env:"TRAINING_MANUAL_INCREASE_PCT" envDefault:"20"`
	ManualIntervalDays int     `env:"TRAINING_MANUAL_INTERVAL_DAYS" envDefault:"1"`
	ManualMaxLimit     int     `env:"TRAINING_MANUAL_MAX_LIMIT" envDefault:"10000"`
}

type LogReaderConfig struct {
	AccountingGlob string `env:"LOG_ACCOUNTING_GLOB" envDefault:"/var/log/pmta/acct-*.csv"`
	FeedbackGlob   string `env:"LOG_FEEDBACK_GLOB" envDefault:"/var/log/pmta/fbl-*.csv"`
	DiagnosticGlob string `env:"LOG_DIAGNOSTIC_GLOB" envDefault:"/var/log/pmta/diag-*.csv"`
}

type BounceConfig struct {
	RulesFile      string        `env:"BOUNCE_RULES_FILE"`
	ConnectTimeout time.Duration `env:"BOUNCE_CONNECT_TIMEOUT" envDefault:"30s"`
	DefaultFolder  string        `env:"BOUNCE_DEFAULT_FOLDER" envDefault:"INBOX"`
}

type SuppressionConfig struct {
	CacheTTL time.Duration `env:"SUPPRESSION_CACHE_TTL" envDefault:"1h"`
}

type MonitorConfig struct {
	RunInterval       time.Duration `env:"MONITOR_RUN_INTERVAL" envDefault:"24h"`
	ResultTTL         time.Duration `env:"MONITOR_RESULT_TTL" envDefault:"168h"`
	LockTTL           time.Duration `env:"MONITOR_LOCK_TTL" envDefault:"2h"`
	Workers           int           `env:"MONITOR_WORKERS" envDefault:"4"`
	LookbackHours     int           `env:"MONITOR_LOOKBACK_HOURS" envDefault:"24"`
	BlacklistProbe    bool          `env:"MONITOR_BLACKLIST_PROBE" envDefault:"false"`
	ProbeTimeout      time.Duration `env:"MONITOR_PROBE_TIMEOUT" envDefault:"30s"`
	MinHealthScore    float64       `env:"MONITOR_MIN_HEALTH_SCORE" envDefault:"70"`
	MinDeliveryRate   float64       `env:"MONITOR_MIN_DELIVERY_RATE" envDefault:"90"`
	MaxBounceRate     float64       `env:"MONITOR_MAX_BOUNCE_RATE" envDefault:"5"`
	MaxComplaintRate  float64       `env:"MONITOR_MAX_COMPLAINT_RATE" envDefault:"0.5"`
	MaxFeedbackLoops  int           `env:"MONITOR_MAX_FEEDBACK_LOOPS" envDefault:"10"`
	MaxDiagnosticHits int           `env:"MONITOR_MAX_DIAGNOSTIC_ISSUES" envDefault:"50"`
}
