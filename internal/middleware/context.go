package middleware

import "context"

type contextKey string

const tenantSinkKey contextKey = "tenant_sink"

func withTenantSink(ctx context.Context, sink *string) context.Context {
	return context.WithValue(ctx, tenantSinkKey, sink)
}

func tenantSink(ctx context.Context) *string {
	sink, _ := ctx.Value(tenantSinkKey).(*string)
	return sink
}
