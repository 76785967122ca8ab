package services

import "context"

type contextKey string

const (
	statementIDKey contextKey = "statement_id"
	tenantKey      contextKey = "tenant_id"
	jobIDKey       contextKey = "job_id"
	stageKey       contextKey = "stage"
	requestIDKey   contextKey = "request_id"
)

// WithStatementID annotates context with the statement identifier.
func WithStatementID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, statementIDKey, id)
}

// StatementIDFromContext extracts the statement identifier if present.
func StatementIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, statementIDKey)
}

// WithTenant annotates context with the tenant identifier.
func WithTenant(ctx context.Context, tenant string) context.Context {
	if tenant == "" {
		return ctx
	}
	return context.WithValue(ctx, tenantKey, tenant)
}

// TenantFromContext returns the tenant identifier if present.
func TenantFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, tenantKey)
}

// WithJobID annotates context with the background job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext returns the job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, jobIDKey)
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, stageKey)
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
