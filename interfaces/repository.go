package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailwarden/internal/models"
)

type SenderRepository interface {
	Create(ctx context.Context, sender *models.Sender) error
	GetByID(ctx context.Context, id string) (*models.Sender, error)
	GetByEmail(ctx context.Context, email string) (*models.Sender, error)
	ListActive(ctx context.Context, scope models.TrainingScope) ([]models.Sender, error)
	// UpdateTraining persists an automatic-mode result: score, limit and training snapshot.
	UpdateTraining(ctx context.Context, id string, score float64, dailyLimit int, trainingData models.JSONMap, trainedAt time.Time) error
	// RatchetLimit raises daily_limit to newLimit only if it is currently lower.
	RatchetLimit(ctx context.Context, id string, newLimit int) (bool, error)
	RecordTraining(ctx context.Context, id string, trainingData models.JSONMap, trainedAt time.Time) error
	ResetDailyCounters(ctx context.Context) (int64, error)
	ActiveStats(ctx context.Context, scope models.TrainingScope) (*models.SenderStats, error)
	LastTrainingAt(ctx context.Context) (*time.Time, error)
}

type DomainRepository interface {
	Create(ctx context.Context, domain *models.Domain) error
	GetByID(ctx context.Context, id string) (*models.Domain, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Domain, error)
	// GetActiveDomains returns active domains of a tenant, or of all tenants when tenant is empty.
	GetActiveDomains(ctx context.Context, tenant string) ([]models.Domain, error)
	UpdateHealth(ctx context.Context, id string, update models.DomainHealthUpdate) error
}

type BounceRecordRepository interface {
	// Create inserts the record unless one already exists for (domain_id, message_id).
	Create(ctx context.Context, record *models.BounceRecord) (bool, error)
	CountByDomainSince(ctx context.Context, domainID string, since time.Time) (map[string]int64, error)
}

type SuppressionRepository interface {
	Upsert(ctx context.Context, entry *models.SuppressionEntry) error
	GetByEmail(ctx context.Context, email string) (*models.SuppressionEntry, error)
	Exists(ctx context.Context, email string) (bool, error)
	Delete(ctx context.Context, email string) (bool, error)
	ForEach(ctx context.Context, batchSize int, fn func(entries []models.SuppressionEntry) error) error
}

type TrainingConfigRepository interface {
	// Get returns the row for the tenant, falling back to the system-wide row. Nil when neither exists.
	Get(ctx context.Context, tenant string) (*models.TrainingConfig, error)
}
