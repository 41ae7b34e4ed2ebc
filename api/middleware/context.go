package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/customeros/mailwarden/internal/utils"
)

// CustomContextMiddleware adds custom context (app source, X-Tenant header) to all requests
func CustomContextMiddleware(appSource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.WithCustomContextFromGinRequest(c, appSource)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
