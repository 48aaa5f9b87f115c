package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"opsuite.io/internal/authz"
	"opsuite.io/internal/obs"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(original) })
	return &buf
}

func TestAppendWritesAuditLine(t *testing.T) {
	buf := captureLog(t)

	ctx := WithRequestID(context.Background(), "req-123")
	NewLogger(nil).Append(ctx, Record{
		Event:   "auth.login",
		UserID:  "user-42",
		Outcome: OutcomeAllowed,
		Fields:  map[string]any{"email": "u@example.com"},
	})

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "auth.login" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["user_id"] != "user-42" {
		t.Fatalf("unexpected user id: %v", entry["user_id"])
	}
	if entry["outcome"] != OutcomeAllowed {
		t.Fatalf("unexpected outcome: %v", entry["outcome"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["email"] != "u@example.com" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestActionRecordsDeniedDecision(t *testing.T) {
	buf := captureLog(t)

	d := authz.Decision{Reason: authz.DenyForbidden}
	NewLogger(nil).Action(context.Background(), d, "sales", "leads", "delete", nil)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["outcome"] != OutcomeDenied {
		t.Fatalf("unexpected outcome: %v", entry["outcome"])
	}
	if entry["reason"] != string(authz.DenyForbidden) {
		t.Fatalf("unexpected reason: %v", entry["reason"])
	}
	if entry["module"] != "sales" || entry["resource"] != "leads" || entry["action"] != "delete" {
		t.Fatalf("capability triple not recorded: %v", entry)
	}
}

func TestActionRecordsAuthorizedPrincipal(t *testing.T) {
	buf := captureLog(t)

	d := authz.Decision{Principal: authz.Principal{User: &authz.User{
		ID:             "u1",
		OrganizationID: "org1",
		Status:         authz.UserStatusActive,
	}}}
	NewLogger(nil).Action(context.Background(), d, "sales", "leads", "view", nil)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["outcome"] != OutcomeAllowed {
		t.Fatalf("unexpected outcome: %v", entry["outcome"])
	}
	if entry["user_id"] != "u1" || entry["organization_id"] != "org1" {
		t.Fatalf("principal not recorded: %v", entry)
	}
}

type failingStore struct{}

func (failingStore) Append(context.Context, *Record) error {
	return errors.New("db down")
}

func TestAppendNeverFailsCaller(t *testing.T) {
	buf := captureLog(t)

	NewLogger(failingStore{}).Append(context.Background(), Record{Event: "auth.logout", Outcome: OutcomeAllowed})

	out := buf.String()
	if !strings.Contains(out, `"type":"audit"`) {
		t.Fatalf("audit line missing: %s", out)
	}
	if !strings.Contains(out, "audit_error") || !strings.Contains(out, "db down") {
		t.Fatalf("persistence failure not surfaced in logs: %s", out)
	}
}
