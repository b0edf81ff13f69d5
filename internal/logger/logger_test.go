package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestInitWriter_EmitsServiceAndRunID(t *testing.T) {
	var buf bytes.Buffer
	log := InitWriter(&buf, "backtest", slog.LevelDebug)

	ctx := WithRunID(context.Background(), "AAPL-1")
	log.Info("run complete", LogWithRun(ctx)...)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if rec["service"] != "backtest" {
		t.Errorf("expected service=backtest, got %v", rec["service"])
	}
	if rec["run_id"] != "AAPL-1" {
		t.Errorf("expected run_id=AAPL-1, got %v", rec["run_id"])
	}
}

func TestRunID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	if id := RunID(ctx); id != "" {
		t.Errorf("expected empty run id, got %q", id)
	}

	ctx = WithRunID(ctx, "test-run-123")
	if id := RunID(ctx); id != "test-run-123" {
		t.Errorf("expected 'test-run-123', got %q", id)
	}
}

func TestNewRunID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	id := NewRunID("MSFT", ts)

	if !strings.HasPrefix(id, "MSFT-") {
		t.Errorf("expected run id to start with 'MSFT-', got %s", id)
	}
	if !strings.Contains(id, "123456789") {
		t.Errorf("expected run id to contain nanoseconds, got %s", id)
	}
}

func TestEnsureRunID_KeepsExisting(t *testing.T) {
	ctx := WithRunID(context.Background(), "keep-me")
	if got := RunID(EnsureRunID(ctx, "X")); got != "keep-me" {
		t.Errorf("expected existing run id kept, got %q", got)
	}
	if got := RunID(EnsureRunID(context.Background(), "X")); !strings.HasPrefix(got, "X-") {
		t.Errorf("expected generated run id, got %q", got)
	}
}

func TestLogWithRun(t *testing.T) {
	if attrs := LogWithRun(context.Background()); attrs != nil {
		t.Errorf("expected nil attrs when no run id, got %v", attrs)
	}
	if attrs := LogWithRun(WithRunID(context.Background(), "abc-123")); len(attrs) == 0 {
		t.Fatal("expected non-empty attrs with run id set")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
