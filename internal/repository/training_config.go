package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mailwarden/interfaces"
	"github.com/customeros/mailwarden/internal/models"
	"github.com/customeros/mailwarden/internal/tracing"
)

type trainingConfigRepository struct {
	db *gorm.DB
}

func NewTrainingConfigRepository(db *gorm.DB) interfaces.TrainingConfigRepository {
	return &trainingConfigRepository{db: db}
}

func (r *trainingConfigRepository) Get(ctx context.Context, tenant string) (*models.TrainingConfig, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TrainingConfigRepository.Get")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagTenant(span, tenant)

	var configs []models.TrainingConfig
	err := r.db.WithContext(ctx).
		Where("tenant IN ?", []string{tenant, ""}).
		Find(&configs).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	var fallback *models.TrainingConfig
	for i := range configs {
		if configs[i].Tenant == tenant {
			return &configs[i], nil
		}
		fallback = &configs[i]
	}
	return fallback, nil
}
