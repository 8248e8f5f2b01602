package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"jobreg/internal/config"
	"jobreg/internal/registry"
	"jobreg/pkg/logx"
)

func fireCtx() context.Context {
	return registry.ContextWithFire(context.Background(), registry.FireInfo{
		ID:          "fire-1",
		Job:         registry.JobKey{Name: "reportJob", Group: "reports"},
		Trigger:     registry.TriggerKey{Name: "reportTrigger", Group: "reports"},
		Cron:        "0 0 12 * * ?",
		ScheduledAt: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
	})
}

func TestWebhookSignsPayload(t *testing.T) {
	t.Parallel()
	var (
		gotBody    []byte
		gotHeaders http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := &Webhook{URL: srv.URL, Secret: "s3cret", Client: srv.Client()}
	if err := wh.Execute(fireCtx()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if ct := gotHeaders.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if id := gotHeaders.Get(HeaderFireID); id != "fire-1" {
		t.Errorf("%s = %q", HeaderFireID, id)
	}
	if !VerifySignature("s3cret", gotBody, gotHeaders.Get(HeaderSignature)) {
		t.Error("signature does not verify")
	}
	if VerifySignature("other", gotBody, gotHeaders.Get(HeaderSignature)) {
		t.Error("signature verified with the wrong secret")
	}

	var p WebhookPayload
	if err := json.Unmarshal(gotBody, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Job != "reports.reportJob" || p.Trigger != "reports.reportTrigger" || p.Cron != "0 0 12 * * ?" {
		t.Errorf("unexpected payload: %+v", p)
	}
	if p.FiredAt.IsZero() || !p.ScheduledAt.Equal(time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected times: %+v", p)
	}
}

func TestWebhookWithoutSecretOmitsSignature(t *testing.T) {
	t.Parallel()
	var sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get(HeaderSignature)
	}))
	defer srv.Close()

	if err := (&Webhook{URL: srv.URL}).Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if sig != "" {
		t.Fatalf("unexpected signature %q", sig)
	}
}

func TestWebhookFailures(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/slow":
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	err := (&Webhook{URL: srv.URL + "/fail"}).Execute(context.Background())
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("Execute = %v, want status error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = (&Webhook{URL: srv.URL + "/slow"}).Execute(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Execute = %v, want deadline exceeded", err)
	}
}

func TestShellRunsCommand(t *testing.T) {
	t.Parallel()
	sh := &Shell{Command: "echo hello", Limit: time.Second}
	if err := sh.Execute(fireCtx()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if sh.Timeout() != time.Second {
		t.Fatalf("Timeout = %v", sh.Timeout())
	}

	err := (&Shell{Command: "echo nope >&2; exit 3"}).Execute(context.Background())
	if err == nil || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("Execute = %v, want failure with output", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = (&Shell{Command: "sleep 5"}).Execute(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Execute = %v, want deadline exceeded", err)
	}
}

func TestTailBufferKeepsEnd(t *testing.T) {
	t.Parallel()
	var tb tailBuffer
	_, _ = tb.Write(bytes.Repeat([]byte("a"), outputTailBytes))
	_, _ = tb.Write([]byte("END"))
	s := tb.String()
	if len(s) != outputTailBytes || !strings.HasSuffix(s, "END") {
		t.Fatalf("tail len=%d suffix=%q", len(s), s[len(s)-3:])
	}
	_, _ = tb.Write(bytes.Repeat([]byte("b"), outputTailBytes+10))
	if tb.String() != strings.Repeat("b", outputTailBytes) {
		t.Fatal("oversized write not truncated to tail")
	}
}

func TestLogLineWritesMessage(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := &LogLine{Message: "report generated", Log: logx.NewJSON(&buf, "info")}
	if err := l.Execute(fireCtx()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "report generated") || !strings.Contains(out, "fire-1") {
		t.Fatalf("log output = %s", out)
	}
}

func TestFromConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		jc      config.JobConfig
		check   func(t *testing.T, j registry.Job)
		wantErr bool
	}{
		{
			name: "shell",
			jc:   config.JobConfig{Name: "a", Kind: "Shell", Command: "true", Timeout: "3s"},
			check: func(t *testing.T, j registry.Job) {
				sh, ok := j.(*Shell)
				if !ok || sh.Command != "true" || sh.Timeout() != 3*time.Second {
					t.Fatalf("got %#v", j)
				}
			},
		},
		{
			name: "webhook",
			jc:   config.JobConfig{Name: "b", Kind: config.KindWebhook, URL: " https://example.com/h ", Secret: "k"},
			check: func(t *testing.T, j registry.Job) {
				wh, ok := j.(*Webhook)
				if !ok || wh.URL != "https://example.com/h" || wh.Secret != "k" {
					t.Fatalf("got %#v", j)
				}
			},
		},
		{
			name: "log default message",
			jc:   config.JobConfig{Name: "c", Kind: config.KindLog},
			check: func(t *testing.T, j registry.Job) {
				ll, ok := j.(*LogLine)
				if !ok || ll.Message != "job fired" {
					t.Fatalf("got %#v", j)
				}
			},
		},
		{name: "unknown kind", jc: config.JobConfig{Name: "d", Kind: "ftp"}, wantErr: true},
		{name: "bad timeout", jc: config.JobConfig{Name: "e", Kind: config.KindLog, Timeout: "x"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			j, err := FromConfig(tt.jc, logx.Nop(), nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("FromConfig: %v", err)
			}
			tt.check(t, j)
		})
	}
}
