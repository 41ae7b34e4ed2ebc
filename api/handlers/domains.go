package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailwarden/dto"
	mwerrors "github.com/customeros/mailwarden/internal/errors"
	"github.com/customeros/mailwarden/internal/tracing"
	"github.com/customeros/mailwarden/internal/utils"
)

type BounceTester interface {
	TestConnection(ctx context.Context, domainID string) (*dto.ConnectionTestResult, error)
}

// ScheduleCheckRequest schedules a single-domain check at At, or DelayMinutes from now.
type ScheduleCheckRequest struct {
	At           *time.Time `json:"at"`
	DelayMinutes int        `json:"delayMinutes"`
}

type ScheduleCheckResponse struct {
	DomainID    string    `json:"domainId"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

type DomainHandler struct {
	monitor Monitor
	bounce  BounceTester
}

func NewDomainHandler(monitor Monitor, bounce BounceTester) *DomainHandler {
	return &DomainHandler{
		monitor: monitor,
		bounce:  bounce,
	}
}

func (h *DomainHandler) Status() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainHandler.Status")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		status, err := h.monitor.GetDomainStatus(ctx, c.Param("id"))
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// TestBounceMailbox reports whether the domain's bounce mailbox accepts the stored credentials
func (h *DomainHandler) TestBounceMailbox() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainHandler.TestBounceMailbox")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		result, err := h.bounce.TestConnection(ctx, c.Param("id"))
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *DomainHandler) ScheduleCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainHandler.ScheduleCheck")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req ScheduleCheckRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, span, err)
				return
			}
		}
		if req.DelayMinutes < 0 {
			respondError(c, span, errors.Wrap(mwerrors.ErrInvalidArgument, "delayMinutes must not be negative"))
			return
		}

		at := utils.Now().Add(time.Duration(req.DelayMinutes) * time.Minute)
		if req.At != nil {
			at = req.At.UTC()
		}

		domainID := c.Param("id")
		if err := h.monitor.ScheduleDelayedCheck(ctx, domainID, at); err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusAccepted, ScheduleCheckResponse{DomainID: domainID, ScheduledAt: at})
	}
}
