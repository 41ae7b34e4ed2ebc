package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailwarden/interfaces"
	mwerrors "github.com/customeros/mailwarden/internal/errors"
	"github.com/customeros/mailwarden/internal/models"
	"github.com/customeros/mailwarden/internal/tracing"
	"github.com/customeros/mailwarden/internal/utils"
)

type suppressionRepository struct {
	db *gorm.DB
}

func NewSuppressionRepository(db *gorm.DB) interfaces.SuppressionRepository {
	return &suppressionRepository{db: db}
}

func (r *suppressionRepository) Upsert(ctx context.Context, entry *models.SuppressionEntry) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressionRepository.Upsert")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.LogKV("email", entry.Email, "type", entry.Type)

	now := utils.Now()
	entry.UpdatedAt = now
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}

	// RETURNING hands back the stored id and created_at when the row already existed
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"type", "source", "reason", "metadata", "updated_at"}),
		}, clause.Returning{}).
		Create(entry).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *suppressionRepository) GetByEmail(ctx context.Context, email string) (*models.SuppressionEntry, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressionRepository.GetByEmail")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.LogKV("email", email)

	var entry models.SuppressionEntry
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mwerrors.ErrSuppressionNotFound
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &entry, nil
}

func (r *suppressionRepository) Exists(ctx context.Context, email string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressionRepository.Exists")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SuppressionEntry{}).
		Where("email = ?", email).
		Limit(1).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return false, err
	}
	return count > 0, nil
}

func (r *suppressionRepository) Delete(ctx context.Context, email string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressionRepository.Delete")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.LogKV("email", email)

	result := r.db.WithContext(ctx).Where("email = ?", email).Delete(&models.SuppressionEntry{})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *suppressionRepository) ForEach(ctx context.Context, batchSize int, fn func(entries []models.SuppressionEntry) error) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressionRepository.ForEach")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var batch []models.SuppressionEntry
	result := r.db.WithContext(ctx).
		Order("email ASC").
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			return fn(batch)
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return result.Error
	}
	return nil
}
