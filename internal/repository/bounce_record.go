package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailwarden/interfaces"
	"github.com/customeros/mailwarden/internal/models"
	"github.com/customeros/mailwarden/internal/tracing"
)

type bounceRecordRepository struct {
	db *gorm.DB
}

func NewBounceRecordRepository(db *gorm.DB) interfaces.BounceRecordRepository {
	return &bounceRecordRepository{db: db}
}

func (r *bounceRecordRepository) Create(ctx context.Context, record *models.BounceRecord) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "BounceRecordRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.LogKV("domainId", record.DomainID, "messageId", record.MessageID, "bounceType", record.BounceType)

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "domain_id"}, {Name: "message_id"}},
			DoNothing: true,
		}).
		Create(record)
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return false, result.Error
	}
	span.LogFields(tracingLog.Bool("response.inserted", result.RowsAffected > 0))
	return result.RowsAffected > 0, nil
}

func (r *bounceRecordRepository) CountByDomainSince(ctx context.Context, domainID string, since time.Time) (map[string]int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "BounceRecordRepository.CountByDomainSince")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, domainID)

	var rows []struct {
		BounceType string
		Total      int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.BounceRecord{}).
		Select("bounce_type, COUNT(*) AS total").
		Where("domain_id = ? AND processed_at >= ?", domainID, since).
		Group("bounce_type").
		Scan(&rows).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.BounceType] = row.Total
	}
	return counts, nil
}
