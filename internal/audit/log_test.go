package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/go-kit/log"

	"filmbase.org/internal/auth"
)

func TestLogEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewJSONLogger(&buf)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithIdentity(ctx, auth.Identity{Subject: "alice01", Roles: []string{"ADMIN"}})

	if err := LogEventTo(ctx, logger, "admin.user_deleted", map[string]any{"target": "bob0001"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

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
	if entry["level"] != "info" {
		t.Fatalf("unexpected level: %v", entry["level"])
	}
	if entry["event"] != "admin.user_deleted" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["subject"] != "alice01" {
		t.Fatalf("unexpected subject: %v", entry["subject"])
	}
	if entry["target"] != "bob0001" {
		t.Fatalf("fields missing or incorrect: %v", entry)
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEventTo(context.Background(), log.NewNopLogger(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event")
	}
	if got := RequestIDFromContext(WithRequestID(context.Background(), " ")); got != "" {
		t.Fatalf("blank request id stored: %q", got)
	}
}
