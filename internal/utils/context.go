package utils

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type CustomContext struct {
	AppSource string
	Tenant    string
}

type customContextKeyType string

const customContextKey customContextKeyType = "CUSTOM_CONTEXT"

func WithCustomContext(ctx context.Context, customContext *CustomContext) context.Context {
	return context.WithValue(ctx, customContextKey, customContext)
}

func WithCustomContextFromGinRequest(c *gin.Context, appSource string) context.Context {
	customContext := &CustomContext{
		AppSource: appSource,
		Tenant:    c.GetHeader("X-Tenant"),
	}
	return WithCustomContext(c.Request.Context(), customContext)
}

func GetContext(ctx context.Context) *CustomContext {
	customContext, ok := ctx.Value(customContextKey).(*CustomContext)
	if !ok {
		return new(CustomContext)
	}
	return customContext
}

func GetAppSourceFromContext(ctx context.Context) string {
	return GetContext(ctx).AppSource
}

func GetTenantFromContext(ctx context.Context) string {
	return GetContext(ctx).Tenant
}

func SetAppSourceInContext(ctx context.Context, appSource string) context.Context {
	customContext := *GetContext(ctx)
	customContext.AppSource = appSource
	return WithCustomContext(ctx, &customContext)
}

func SetTenantInContext(ctx context.Context, tenant string) context.Context {
	customContext := *GetContext(ctx)
	customContext.Tenant = tenant
	return WithCustomContext(ctx, &customContext)
}

func ValidateTenant(ctx context.Context) error {
	if GetTenantFromContext(ctx) == "" {
		return errors.New("tenant is missing")
	}
	return nil
}
