package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	mwerrors "github.com/customeros/mailwarden/internal/errors"
	"github.com/customeros/mailwarden/internal/tracing"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, mwerrors.ErrInvalidEmail),
		errors.Is(err, mwerrors.ErrInvalidArgument),
		errors.Is(err, mwerrors.ErrTenantMissing):
		return http.StatusBadRequest
	case errors.Is(err, mwerrors.ErrDomainNotFound),
		errors.Is(err, mwerrors.ErrSenderNotFound),
		errors.Is(err, mwerrors.ErrSuppressionNotFound):
		return http.StatusNotFound
	case errors.Is(err, mwerrors.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, mwerrors.ErrInvalidConfiguration),
		errors.Is(err, mwerrors.ErrMailboxNotConfigured),
		errors.Is(err, mwerrors.ErrNoActiveSenders):
		return http.StatusUnprocessableEntity
	case errors.Is(err, mwerrors.ErrConnectionTimeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// respondError traces err and writes it with the status matching its sentinel.
// Internal errors are not echoed to the caller.
func respondError(c *gin.Context, span opentracing.Span, err error) {
	tracing.TraceErr(span, err)
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	c.JSON(status, ErrorResponse{Error: message})
}

func badRequest(c *gin.Context, span opentracing.Span, err error) {
	tracing.TraceErr(span, err)
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}
