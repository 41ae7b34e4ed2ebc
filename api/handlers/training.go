package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailwarden/dto"
	"github.com/customeros/mailwarden/internal/enum"
	mwerrors "github.com/customeros/mailwarden/internal/errors"
	"github.com/customeros/mailwarden/internal/models"
	"github.com/customeros/mailwarden/internal/tracing"
	"github.com/customeros/mailwarden/internal/utils"
	"github.com/customeros/mailwarden/services/monitor"
)

type Trainer interface {
	RunTraining(ctx context.Context, scope models.TrainingScope) (*dto.TrainingResult, error)
	GetAllowance(ctx context.Context, email string) (*dto.Allowance, error)
}

type Monitor interface {
	ForceRun(ctx context.Context) (*monitor.RunSummary, error)
	GetTrainingStatus(ctx context.Context) (*dto.TrainingStatus, error)
	GetDomainStatus(ctx context.Context, domainID string) (*dto.DomainStatus, error)
	ScheduleDelayedCheck(ctx context.Context, domainID string, at time.Time) error
}

type RunTrainingRequest struct {
	Scope    string `json:"scope"`
	Tenant   string `json:"tenant"`
	DomainID string `json:"domainId"`
}

// scope turns the request into a training scope. The tenant falls back to the X-Tenant header.
func (r RunTrainingRequest) scope(ctx context.Context) (models.TrainingScope, error) {
	tenant := r.Tenant
	if tenant == "" {
		tenant = utils.GetTenantFromContext(ctx)
	}

	switch enum.TrainingScopeKind(r.Scope) {
	case enum.ScopeAll:
		return models.TrainingScope{}, nil
	case enum.ScopeTenant:
		if tenant == "" {
			return models.TrainingScope{}, errors.Wrap(mwerrors.ErrTenantMissing, "tenant scope")
		}
		return models.TrainingScope{Tenant: tenant}, nil
	case enum.ScopeDomain:
		if r.DomainID == "" {
			return models.TrainingScope{}, errors.Wrap(mwerrors.ErrInvalidArgument, "domain scope requires domainId")
		}
		return models.TrainingScope{Tenant: r.Tenant, DomainID: r.DomainID}, nil
	case "":
		return models.TrainingScope{Tenant: tenant, DomainID: r.DomainID}, nil
	}
	return models.TrainingScope{}, errors.Wrapf(mwerrors.ErrInvalidArgument, "unknown scope %q", r.Scope)
}

type TrainingHandler struct {
	trainer Trainer
	monitor Monitor
}

func NewTrainingHandler(trainer Trainer, monitor Monitor) *TrainingHandler {
	return &TrainingHandler{
		trainer: trainer,
		monitor: monitor,
	}
}

// RunTraining runs a training pass synchronously and returns its result
func (h *TrainingHandler) RunTraining() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "TrainingHandler.RunTraining")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req RunTrainingRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, span, err)
				return
			}
		}

		scope, err := req.scope(ctx)
		if err != nil {
			respondError(c, span, err)
			return
		}
		tracing.LogObjectAsJson(span, "scope", scope)

		result, err := h.trainer.RunTraining(ctx, scope)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *TrainingHandler) Status() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "TrainingHandler.Status")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		status, err := h.monitor.GetTrainingStatus(ctx)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// Allowance tells dispatch how many more messages a sender may send today
func (h *TrainingHandler) Allowance() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "TrainingHandler.Allowance")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		allowance, err := h.trainer.GetAllowance(ctx, c.Param("email"))
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, allowance)
	}
}

// RunMonitor forces a full monitoring run regardless of the last run stamp
func (h *TrainingHandler) RunMonitor() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "TrainingHandler.RunMonitor")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		// the run outlives a dropped client connection
		summary, err := h.monitor.ForceRun(context.WithoutCancel(ctx))
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
