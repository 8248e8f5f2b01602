package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewJSONWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "debug").With(String("comp", "registry"))
	log.Info("job registered",
		String("trigger", "DEFAULT_GROUP.report"),
		Int("n", 2),
		Bool("ok", true),
		Duration("took", 1500*time.Millisecond),
		Err(errors.New("boom")),
		Err(nil),
	)

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	want := map[string]any{
		"level":   "info",
		"message": "job registered",
		"comp":    "registry",
		"trigger": "DEFAULT_GROUP.report",
		"err":     "boom",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Fatalf("field %s = %v, want %v (record %v)", k, rec[k], v, rec)
		}
	}
	if c, _ := rec["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %q, want logging_test.go:<line>", c)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "warn")
	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")
	if n := strings.Count(buf.String(), "\n"); n != 1 {
		t.Fatalf("got %d lines, want 1: %q", n, buf.String())
	}
	if log.Enabled(LevelInfo) || !log.Enabled(LevelError) {
		t.Fatal("Enabled does not reflect the configured level")
	}
}

func TestZeroAndNopLoggers(t *testing.T) {
	t.Parallel()
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	zero.Error("dropped", String("k", "v"))
	zero.Printf("dropped %d", 1)
	if Nop().IsZero() {
		t.Fatal("Nop should not report IsZero")
	}
}

func TestServiceApplyFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobreg.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	defer svc.Close()

	log.Debug("below level")
	log.Info("to file", String("k", "v"))
	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	log.Debug("after apply")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(b)
	if strings.Contains(out, "below level") {
		t.Fatalf("debug line written before level change: %q", out)
	}
	if !strings.Contains(out, "to file") || !strings.Contains(out, "after apply") {
		t.Fatalf("missing lines in %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Level
	}{
		{"trace", LevelTrace},
		{" DEBUG ", LevelDebug},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"nonsense", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, LevelInfo); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
