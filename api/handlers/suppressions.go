package handlers

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailwarden/interfaces"
	"github.com/customeros/mailwarden/internal/enum"
	mwerrors "github.com/customeros/mailwarden/internal/errors"
	"github.com/customeros/mailwarden/internal/models"
	"github.com/customeros/mailwarden/internal/tracing"
	"github.com/customeros/mailwarden/internal/utils"
)

const (
	sourceAPI       = "api"
	maxImportBytes  = 64 << 20
	exportFileName  = "suppressions.csv"
	exportMediaType = "text/csv; charset=utf-8"
)

type AddSuppressionRequest struct {
	Email    string         `json:"email" binding:"required"`
	Type     string         `json:"type"`
	Source   string         `json:"source"`
	Reason   string         `json:"reason"`
	Metadata map[string]any `json:"metadata"`
}

type SuppressionResponse struct {
	Email      string                   `json:"email"`
	Suppressed bool                     `json:"suppressed"`
	Entry      *models.SuppressionEntry `json:"entry,omitempty"`
}

type SuppressionHandler struct {
	suppression interfaces.SuppressionService
}

func NewSuppressionHandler(suppression interfaces.SuppressionService) *SuppressionHandler {
	return &SuppressionHandler{
		suppression: suppression,
	}
}

// Check answers whether an address may be mailed. This is the dispatch hot path.
func (h *SuppressionHandler) Check() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SuppressionHandler.Check")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		email := utils.NormalizeEmail(c.Param("email"))
		suppressed, err := h.suppression.IsSuppressed(ctx, email)
		if err != nil {
			respondError(c, span, err)
			return
		}

		response := SuppressionResponse{Email: email, Suppressed: suppressed}
		if suppressed && c.Query("details") == "true" {
			entry, err := h.suppression.GetEntry(ctx, email)
			if err != nil && !errors.Is(err, mwerrors.ErrSuppressionNotFound) {
				respondError(c, span, err)
				return
			}
			response.Entry = entry
		}
		c.JSON(http.StatusOK, response)
	}
}

func (h *SuppressionHandler) Add() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SuppressionHandler.Add")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req AddSuppressionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, span, err)
			return
		}

		suppressionType := enum.SuppressionType(req.Type)
		if req.Type == "" {
			suppressionType = enum.SuppressionManual
		}
		source := req.Source
		if source == "" {
			source = sourceAPI
		}

		entry, err := h.suppression.AddEmail(ctx, req.Email, suppressionType, source, req.Reason, req.Metadata)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, SuppressionResponse{Email: entry.Email, Suppressed: true, Entry: entry})
	}
}

func (h *SuppressionHandler) Remove() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SuppressionHandler.Remove")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		removed, err := h.suppression.RemoveEmail(ctx, c.Param("email"))
		if err != nil {
			respondError(c, span, err)
			return
		}
		if !removed {
			respondError(c, span, mwerrors.ErrSuppressionNotFound)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// Export streams the flat file. ?metadata=true adds the JSON metadata column,
// ?key=<object key> uploads to object storage instead.
func (h *SuppressionHandler) Export() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SuppressionHandler.Export")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		if key := c.Query("key"); key != "" {
			count, err := h.suppression.ExportToStorage(ctx, key)
			if err != nil {
				respondError(c, span, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"key": key, "exported": count})
			return
		}

		var buf bytes.Buffer
		if _, err := h.suppression.Export(ctx, &buf, c.Query("metadata") == "true"); err != nil {
			respondError(c, span, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+exportFileName+`"`)
		c.Data(http.StatusOK, exportMediaType, buf.Bytes())
	}
}

// Import reads a flat file from the request body. ?type= sets the suppression type (default manual).
func (h *SuppressionHandler) Import() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SuppressionHandler.Import")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		suppressionType := enum.SuppressionType(c.DefaultQuery("type", string(enum.SuppressionManual)))
		source := c.DefaultQuery("source", "import")

		body := http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
		result, err := h.suppression.Import(ctx, body, suppressionType, source)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
