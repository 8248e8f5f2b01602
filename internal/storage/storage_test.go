package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"jobreg/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected missing path error")
	}
}

func TestStoresRecentAuditNewestFirst(t *testing.T) {
	t.Parallel()
	tests := []struct {
		driver string
		file   string
	}{
		{driver: "file", file: "state.json"},
		{driver: "sqlite", file: "audit.db"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.driver, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			st, err := Open(Config{Driver: tt.driver, Path: filepath.Join(dir, tt.file)}, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer st.Close()

			ctx := context.Background()
			base := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
			for i := 0; i < 5; i++ {
				e := AuditEntry{
					At:      base.Add(time.Duration(i) * time.Second),
					Op:      "register",
					Job:     "DEFAULT_GROUP.report",
					Trigger: fmt.Sprintf("DEFAULT_GROUP.t%d", i),
					Cron:    "0 0 12 * * ?",
					OK:      i%2 == 0,
					TookMS:  int64(i),
				}
				if i == 3 {
					e.Error = "engine down"
				}
				if err := st.AppendAudit(ctx, e); err != nil {
					t.Fatalf("AppendAudit: %v", err)
				}
			}

			got, err := st.RecentAudit(ctx, 3)
			if err != nil {
				t.Fatalf("RecentAudit: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("RecentAudit returned %d entries, want 3", len(got))
			}
			for i, want := range []string{"DEFAULT_GROUP.t4", "DEFAULT_GROUP.t3", "DEFAULT_GROUP.t2"} {
				if got[i].Trigger != want {
					t.Fatalf("entry %d trigger = %q, want %q", i, got[i].Trigger, want)
				}
			}
			if got[1].Error != "engine down" || got[1].OK {
				t.Fatalf("entry 1 = %+v, want failed entry with error", got[1])
			}
			if !got[0].At.Equal(base.Add(4 * time.Second)) {
				t.Fatalf("entry 0 at = %v", got[0].At)
			}

			all, err := st.RecentAudit(ctx, 0)
			if err != nil || len(all) != 5 {
				t.Fatalf("RecentAudit(0) = %d entries, %v; want 5", len(all), err)
			}
		})
	}
}

func TestFileStoreSkipsCorruptLines(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "jobreg")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()
	if err := st.AppendAudit(ctx, AuditEntry{Op: "pause", OK: true}); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "jobreg.audit.jsonl"), os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	_, _ = f.WriteString("{not json\n")
	_ = f.Close()
	if err := st.AppendAudit(ctx, AuditEntry{Op: "remove", OK: true}); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}

	got, err := st.RecentAudit(ctx, 10)
	if err != nil {
		t.Fatalf("RecentAudit: %v", err)
	}
	if len(got) != 2 || got[0].Op != "remove" || got[1].Op != "pause" {
		t.Fatalf("RecentAudit = %+v", got)
	}
	if got[0].At.IsZero() {
		t.Fatal("AppendAudit should stamp zero times")
	}
}

func TestFileStoreClosed(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "x.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.AppendAudit(context.Background(), AuditEntry{Op: "modify"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("AppendAudit after close = %v, want ErrDisabled", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
