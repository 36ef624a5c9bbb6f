package audit

import (
	"context"
	"errors"
	"strings"

	"authright.org/internal/auth"
	"authright.org/internal/obs"
	"authright.org/internal/registry"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := obs.Logger().Info().
		Str("type", "audit").
		Str("event", event)
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry = entry.Str("request_id", rid)
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		entry = entry.Str("user_id", userID)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	entry.Interface("fields", fields).Send()
	return nil
}

// Sink records every committed registry event in the audit trail.
type Sink struct{}

var _ registry.Sink = Sink{}

func (Sink) Deposit(ctx context.Context, evt registry.Event) {
	fields := map[string]any{
		"id":      evt.ID,
		"account": evt.Account,
		"block":   evt.Block,
	}
	switch evt.Kind {
	case registry.EventOrganizationRegistered:
		fields["code"] = evt.Code.String()
		fields["name"] = evt.Name.String()
	case registry.EventOrganizationApprovalChanged:
		fields["code"] = evt.Code.String()
		fields["status"] = evt.Status
	case registry.EventAuthRightClaimed:
		fields["hash"] = evt.Hash.String()
		fields["org_code"] = evt.Code.String()
	}
	_ = LogEvent(ctx, "registry."+string(evt.Kind), fields)
}
