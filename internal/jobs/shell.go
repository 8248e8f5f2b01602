package jobs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"jobreg/internal/registry"
	"jobreg/pkg/logx"
)

const outputTailBytes = 2048

// Shell runs Command through "sh -c".
type Shell struct {
	Command string
	// Timeout overrides the engine default when > 0.
	Limit time.Duration
	Log   logx.Logger
}

func (s *Shell) Timeout() time.Duration { return s.Limit }

func (s *Shell) Execute(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", s.Command)
	var out tailBuffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	// Orphaned grandchildren may hold the output pipe open after a kill.
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	fields := []logx.Field{logx.Duration("took", time.Since(start))}
	if fi, ok := registry.FireFromContext(ctx); ok {
		fields = append(fields, logx.String("fire_id", fi.ID), logx.String("job", fi.Job.String()))
	}
	tail := strings.TrimSpace(out.String())
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		if tail != "" {
			return fmt.Errorf("shell: %w: %s", err, tail)
		}
		return fmt.Errorf("shell: %w", err)
	}
	if tail != "" {
		fields = append(fields, logx.String("output", tail))
	}
	s.Log.Debug("shell job finished", fields...)
	return nil
}

// tailBuffer keeps the last outputTailBytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= outputTailBytes {
		t.buf.Reset()
		t.buf.Write(p[n-outputTailBytes:])
		return n, nil
	}
	if over := t.buf.Len() + n - outputTailBytes; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string { return t.buf.String() }
