package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types
const (
	EventSignUp           = "sign_up"
	EventLoginAllowed     = "login_allowed"
	EventMFARequired      = "login_mfa_required"
	EventPasswordMismatch = "login_password_mismatch"
	EventMFAVerified      = "mfa_verified"
	EventMFARejected      = "mfa_rejected"
	EventTenantCreated    = "tenant_created"
	EventTenantRejected   = "tenant_key_rejected"
	EventFieldAdded       = "tenant_field_added"
	EventFieldRemoved     = "tenant_field_removed"
	EventAccountUpdated   = "account_updated"
	EventAccountDeleted   = "account_deleted"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	TenantID      string
	AccountID     string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes security events as structured log records tagged with
// audit_type so they can be routed separately from request logs.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogAuthAttempt logs login and MFA outcomes
func (al *AuditLogger) LogAuthAttempt(ctx context.Context, event AuditEvent) {
	al.log(ctx, "auth", event)
}

// LogTenantAction logs tenant provisioning and schema changes
func (al *AuditLogger) LogTenantAction(ctx context.Context, event AuditEvent) {
	al.log(ctx, "tenant", event)
}

// LogAccountAction logs account lifecycle changes
func (al *AuditLogger) LogAccountAction(ctx context.Context, event AuditEvent) {
	al.log(ctx, "account", event)
}

func (al *AuditLogger) log(ctx context.Context, auditType string, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.TenantID != "" {
		attrs = append(attrs, slog.String("tenant_id", event.TenantID))
	}
	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}
