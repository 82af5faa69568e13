package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func TestNew_DefaultsToInfoOnBadLevel(t *testing.T) {
	logger := New("storefront", "not-a-level", "json")
	if logger.GetLevel().String() != "info" {
		t.Errorf("level = %s, want info", logger.GetLevel())
	}
	if logger.Service() != "storefront" {
		t.Errorf("Service() = %s, want storefront", logger.Service())
	}
}

func TestWithContext_AddsTraceAndUser(t *testing.T) {
	var buf bytes.Buffer
	logger := New("storefront", "debug", "json")
	logger.SetOutput(&buf)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithUserID(ctx, "user-1")
	logger.WithContext(ctx).Info("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["trace_id"] != "trace-1" {
		t.Errorf("trace_id = %v, want trace-1", entry["trace_id"])
	}
	if entry["user_id"] != "user-1" {
		t.Errorf("user_id = %v, want user-1", entry["user_id"])
	}
	if entry["service"] != "storefront" {
		t.Errorf("service = %v, want storefront", entry["service"])
	}
}

func TestLogRequest_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "info"},
		{http.StatusNotFound, "warning"},
		{http.StatusBadGateway, "error"},
	}

	for _, tc := range tests {
		var buf bytes.Buffer
		logger := New("storefront", "debug", "json")
		logger.SetOutput(&buf)

		logger.LogRequest(context.Background(), http.MethodGet, "/", tc.status, 5*time.Millisecond)

		var entry map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("unmarshal log line: %v", err)
		}
		if entry["level"] != tc.level {
			t.Errorf("status %d: level = %v, want %s", tc.status, entry["level"], tc.level)
		}
	}
}

func TestContextGetters_Empty(t *testing.T) {
	ctx := context.Background()
	if GetTraceID(ctx) != "" || GetUserID(ctx) != "" || GetRole(ctx) != "" {
		t.Error("getters should return empty strings on a bare context")
	}
	if NewTraceID() == NewTraceID() {
		t.Error("NewTraceID() should be unique")
	}
}
