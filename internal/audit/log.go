package audit

import (
	"context"
	"strings"
	"time"

	"opsuite.io/internal/authz"
	"opsuite.io/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// Outcome values for audit records.
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// requestIDFromContext extracts the audit request id from context if present.
func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Record is one audit entry: who attempted what, and how it was decided.
type Record struct {
	Event          string         `json:"event"`
	RequestID      string         `json:"request_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Module         string         `json:"module,omitempty"`
	Resource       string         `json:"resource,omitempty"`
	Action         string         `json:"action,omitempty"`
	Outcome        string         `json:"outcome,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Fields         map[string]any `json:"fields,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// Store persists audit records.
type Store interface {
	Append(ctx context.Context, rec *Record) error
}

// Logger writes audit records as JSON log lines and, when a store is
// configured, persists them. It never fails its caller: an audit problem
// must not turn an otherwise-decided request into an error.
type Logger struct {
	store Store
	now   func() time.Time
}

// NewLogger constructs an audit logger. A nil store means log-only.
func NewLogger(store Store) *Logger {
	return &Logger{store: store, now: time.Now}
}

// Append records an audit entry. Persistence and encoding failures are
// counted and logged rather than returned.
func (l *Logger) Append(ctx context.Context, rec Record) {
	if rec.Event == "" {
		rec.Event = "audit.event"
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = l.now().UTC()
	}
	if rec.RequestID == "" {
		rec.RequestID = requestIDFromContext(ctx)
	}

	entry := map[string]any{
		"ts":    rec.OccurredAt.Format(time.RFC3339Nano),
		"type":  "audit",
		"event": rec.Event,
	}
	if rec.RequestID != "" {
		entry["request_id"] = rec.RequestID
	}
	if rec.UserID != "" {
		entry["user_id"] = rec.UserID
	}
	if rec.OrganizationID != "" {
		entry["organization_id"] = rec.OrganizationID
	}
	if rec.Module != "" {
		entry["module"] = rec.Module
		entry["resource"] = rec.Resource
		entry["action"] = rec.Action
	}
	if rec.Outcome != "" {
		entry["outcome"] = rec.Outcome
	}
	if rec.Reason != "" {
		entry["reason"] = rec.Reason
	}
	if len(rec.Fields) > 0 {
		entry["fields"] = rec.Fields
	}

	if err := obs.Emit(entry); err != nil {
		obs.RecordAuditFailure()
		return
	}

	if l.store == nil {
		return
	}
	if err := l.store.Append(ctx, &rec); err != nil {
		obs.RecordAuditFailure()
		_ = obs.Emit(map[string]any{
			"type":  "audit_error",
			"event": rec.Event,
			"error": err.Error(),
		})
	}
}

// Action records the outcome of a guarded operation from its decision.
func (l *Logger) Action(ctx context.Context, d authz.Decision, module, resource, action string, fields map[string]any) {
	rec := Record{
		Event:    "authz.check",
		Module:   module,
		Resource: resource,
		Action:   action,
		Fields:   fields,
	}
	if d.Authorized() {
		rec.Outcome = OutcomeAllowed
	} else {
		rec.Outcome = OutcomeDenied
		rec.Reason = string(d.Reason)
	}
	if d.User != nil {
		rec.UserID = d.User.ID
		rec.OrganizationID = d.User.OrganizationID
	}
	if d.Err != nil {
		if rec.Fields == nil {
			rec.Fields = map[string]any{}
		}
		rec.Fields["error"] = d.Err.Error()
	}
	l.Append(ctx, rec)
}
