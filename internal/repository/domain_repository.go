package repository

import (
	"context"

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

type domainRepository struct {
	db *gorm.DB
}

func NewDomainRepository(db *gorm.DB) interfaces.DomainRepository {
	return &domainRepository{
		db: db,
	}
}

func (r *domainRepository) Create(ctx context.Context, domain *models.Domain) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagTenant(span, domain.Tenant)
	span.LogKV("domain", domain.Domain)

	err := r.db.WithContext(ctx).Create(domain).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *domainRepository) GetByID(ctx context.Context, id string) (*models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	var domain models.Domain
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&domain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mwerrors.ErrDomainNotFound
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &domain, nil
}

func (r *domainRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetByIDs")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.LogFields(tracingLog.Int("request.count", len(ids)))

	if len(ids) == 0 {
		return nil, nil
	}

	var domains []models.Domain
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&domains).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return domains, nil
}

func (r *domainRepository) GetActiveDomains(ctx context.Context, tenant string) ([]models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetActiveDomains")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagTenant(span, tenant)

	query := r.db.WithContext(ctx).Where("active = ?", true)
	if tenant != "" {
		query = query.Where("tenant = ?", tenant)
	}

	var domains []models.Domain
	err := query.Order("domain ASC").Find(&domains).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return domains, nil
}

func (r *domainRepository) UpdateHealth(ctx context.Context, id string, update models.DomainHealthUpdate) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainRepository.UpdateHealth")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)
	tracing.LogObjectAsJson(span, "update", update)

	err := r.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"reputation_score": update.ReputationScore,
			"health_score":     update.HealthScore,
			"health_status":    update.HealthStatus,
			"last_monitored":   update.MonitoredAt,
			"updated_at":       utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}
