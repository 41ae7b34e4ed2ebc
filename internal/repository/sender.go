package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mailwarden/interfaces"
	mwerrors "github.com/customeros/mailwarden/internal/errors"
	"github.com/customeros/mailwarden/internal/models"
	"github.com/customeros/mailwarden/internal/tracing"
	"github.com/customeros/mailwarden/internal/utils"
)

type senderRepository struct {
	db *gorm.DB
}

func NewSenderRepository(db *gorm.DB) interfaces.SenderRepository {
	return &senderRepository{db: db}
}

func (r *senderRepository) Create(ctx context.Context, sender *models.Sender) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SenderRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagTenant(span, sender.Tenant)

	err := r.db.WithContext(ctx).Create(sender).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *senderRepository) GetByID(ctx context.Context, id string) (*models.Sender, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SenderRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	var sender models.Sender
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sender).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mwerrors.ErrSenderNotFound
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &sender, nil
}

func (r *senderRepository) GetByEmail(ctx context.Context, email string) (*models.Sender, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SenderRepository.GetByEmail")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.LogKV("email", email)

	var sender models.Sender
	err := r.db.WithContext(ctx).Where("email = ?", utils.NormalizeEmail(email)).First(&sender).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mwerrors.ErrSenderNotFound
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &sender, nil
}

func (r *senderRepository) scoped(ctx context.Context, scope models.TrainingScope) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Sender{}).Where("is_active = ?", true)
	if scope.Tenant != "" {
		query = query.Where("tenant = ?", scope.Tenant)
	}
	if scope.DomainID != "" {
		query = query.Where("domain_id = ?", scope.DomainID)
	}
	return query
}

func (r *senderRepository) ListActive(ctx context.Context, scope models.TrainingScope) ([]models.Sender, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SenderRepository.ListActive")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagTenant(span, scope.Tenant)
	span.LogKV("domainId", scope.DomainID)

	var senders []models.Sender
	err := r.scoped(ctx, scope).Order("created_at ASC").Find(&senders).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	span.LogFields(tracingLog.Int("response.count", len(senders)))
	return senders, nil
}

func (r *senderRepository) UpdateTraining(ctx context.Context, id string, score float64, dailyLimit int, trainingData models.JSONMap, trainedAt time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SenderRepository.UpdateTraining")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)
	span.LogKV("score", score, "dailyLimit", dailyLimit)

	err := r.db.WithContext(ctx).
		Model(&models.Sender{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"reputation_score": score,
			"daily_limit":      dailyLimit,
			"training_data":    trainingData,
			"last_training_at": trainedAt,
			"updated_at":       utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *senderRepository) RatchetLimit(ctx context.Context, id string, newLimit int) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SenderRepository.RatchetLimit")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)
	span.LogKV("newLimit", newLimit)

	result := r.db.WithContext(ctx).
		Model(&models.Sender{}).
		Where("id = ? AND daily_limit < ?", id, newLimit).
		Updates(map[string]interface{}{
			"daily_limit": newLimit,
			"updated_at":  utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return false, result.Error
	}
	span.LogFields(tracingLog.Bool("response.raised", result.RowsAffected > 0))
	return result.RowsAffected > 0, nil
}

func (r *senderRepository) RecordTraining(ctx context.Context, id string, trainingData models.JSONMap, trainedAt time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SenderRepository.RecordTraining")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	err := r.db.WithContext(ctx).
		Model(&models.Sender{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"training_data":    trainingData,
			"last_training_at": trainedAt,
			"updated_at":       utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *senderRepository) ResetDailyCounters(ctx context.Context) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SenderRepository.ResetDailyCounters")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	result := r.db.WithContext(ctx).
		Model(&models.Sender{}).
		Where("current_daily_sent <> ?", 0).
		UpdateColumn("current_daily_sent", 0)
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *senderRepository) ActiveStats(ctx context.Context, scope models.TrainingScope) (*models.SenderStats, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SenderRepository.ActiveStats")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagTenant(span, scope.Tenant)

	var stats models.SenderStats
	err := r.scoped(ctx, scope).
		Select("COUNT(*) AS active_count, COALESCE(AVG(reputation_score), 0) AS avg_reputation, COALESCE(SUM(daily_limit), 0) AS total_limit").
		Scan(&stats).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &stats, nil
}

func (r *senderRepository) LastTrainingAt(ctx context.Context) (*time.Time, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SenderRepository.LastTrainingAt")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var lastRun *time.Time
	err := r.db.WithContext(ctx).
		Model(&models.Sender{}).
		Select("MAX(last_training_at)").
		Scan(&lastRun).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return lastRun, nil
}
