package logx

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("session-abc")

	if logger.GetScope() != "session-abc" {
		t.Errorf("Expected scope 'session-abc', got '%s'", logger.GetScope())
	}
}

func TestWithScope(t *testing.T) {
	logger := NewLogger("system")
	scoped := logger.WithScope("session-1")

	if scoped.GetScope() != "session-1" {
		t.Errorf("Expected scope 'session-1', got '%s'", scoped.GetScope())
	}
	if logger.GetScope() != "system" {
		t.Errorf("Original logger scope mutated to '%s'", logger.GetScope())
	}
}

func TestDebugDomainFiltering(t *testing.T) {
	SetDebug(true, []string{"gateway"})
	defer SetDebug(false, nil)

	if !IsDebugEnabledForDomain("gateway") {
		t.Error("Expected gateway domain to be enabled")
	}
	if IsDebugEnabledForDomain("loop") {
		t.Error("Expected loop domain to be disabled")
	}

	SetDebug(true, nil)
	if !IsDebugEnabledForDomain("loop") {
		t.Error("Expected all domains enabled when no filter configured")
	}
}

func TestSessionIDContext(t *testing.T) {
	ctx := WithSessionID(context.Background(), "sess-42")

	if got := SessionIDFromContext(ctx); got != "sess-42" {
		t.Errorf("Expected 'sess-42', got '%s'", got)
	}
	if got := SessionIDFromContext(context.Background()); got != "" {
		t.Errorf("Expected empty session id, got '%s'", got)
	}
}

func TestLogBufferCapture(t *testing.T) {
	logger := NewLogger("buffer-test")
	logger.Info("captured message %d", 7)

	entries := GetRecentLogEntries("", time.Time{})
	found := false
	for i := range entries {
		if entries[i].Scope == "buffer-test" && entries[i].Message == "captured message 7" {
			found = true
			break
		}
	}
	if !found {
		t.Error("Expected log entry in buffer")
	}
}

func TestErrorf(t *testing.T) {
	err := Errorf("operation failed: %s", "timeout")
	if err == nil || err.Error() != "operation failed: timeout" {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestWrap(t *testing.T) {
	base := errors.New("connection refused")
	wrapped := Wrap(base, "db connect")

	if wrapped == nil {
		t.Fatal("Expected wrapped error")
	}
	if !errors.Is(wrapped, base) {
		t.Error("Expected wrapped error to unwrap to base")
	}
	if Wrap(nil, "noop") != nil {
		t.Error("Expected nil for nil input")
	}
}
