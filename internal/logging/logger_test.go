package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetup_WritesFile(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	path := filepath.Join(t.TempDir(), "tables.log")
	logger, closer := Setup(Options{Level: "info", Format: "json", File: path, MaxSizeMB: 1})

	logger.Debug("hidden entry")
	logger.Info("session created", "table", "users")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"session created"`) {
		t.Errorf("log file = %q, want session created entry", out)
	}
	if !strings.Contains(out, `"table":"users"`) {
		t.Errorf("log file = %q, want table field", out)
	}
	if strings.Contains(out, "hidden entry") {
		t.Errorf("log file = %q, debug entry should be filtered", out)
	}
}

func TestSetup_NoFile(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	logger, closer := Setup(Options{Level: "warn"})
	if logger == nil {
		t.Fatal("Setup() returned nil logger")
	}
	if err := closer.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if slog.Default() != logger {
		t.Error("Setup() should install the logger as default")
	}
}

func TestFromContext_RequestID(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	slog.SetDefault(slog.New(newHandler(&buf, "info", "text")))

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	WithFields(ctx, "session_id", "abc").Info("filters applied")

	out := buf.String()
	if !strings.Contains(out, "request_id=req-42") {
		t.Errorf("output = %q, want request_id", out)
	}
	if !strings.Contains(out, "session_id=abc") {
		t.Errorf("output = %q, want session_id", out)
	}
}
