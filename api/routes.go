package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/customeros/mailwarden/api/handlers"
	"github.com/customeros/mailwarden/api/middleware"
	"github.com/customeros/mailwarden/internal/tracing"
)

const (
	AppSource    = "mailwarden"
	APIKeyHeader = "X-MAILWARDEN-API-KEY"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, h *handlers.APIHandlers, apikey string) {
	if h == nil {
		panic("Handlers cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	// unauthenticated
	r.GET("/health", handlers.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  APIKeyHeader,
		ValidAPIKey: apikey,
	})

	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.CustomContextMiddleware(AppSource))
	api.Use(middleware.TracingMiddleware())
	{
		training := api.Group("/training")
		{
			training.POST("/run", h.Training.RunTraining())
			training.GET("/status", h.Training.Status())
		}

		api.POST("/monitor/run", h.Training.RunMonitor())
		api.GET("/senders/:email/allowance", h.Training.Allowance())

		domains := api.Group("/domains")
		{
			domains.GET("/:id/status", h.Domains.Status())
			domains.POST("/:id/bounce/test", h.Domains.TestBounceMailbox())
			domains.POST("/:id/checks", h.Domains.ScheduleCheck())
		}

		suppressions := api.Group("/suppressions")
		{
			suppressions.POST("", h.Suppressions.Add())
			suppressions.GET("/export", h.Suppressions.Export())
			suppressions.POST("/import", h.Suppressions.Import())
			suppressions.GET("/:email", h.Suppressions.Check())
			suppressions.DELETE("/:email", h.Suppressions.Remove())
		}
	}
}
