package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"jobreg/internal/app"
	"jobreg/internal/config"
	"jobreg/internal/cronexpr"
	"jobreg/pkg/logx"
)

func main() {
	var (
		cfgPath      string
		validateOnly bool
		cronExpr     string
		stopTimeout  time.Duration
	)
	flag.StringVar(&cfgPath, "config", "./jobreg.yaml", "path to config (yaml or json)")
	flag.BoolVar(&validateOnly, "validate", false, "validate the config and exit")
	flag.StringVar(&cronExpr, "cron", "", "print the next fire times of a cron expression and exit")
	flag.DurationVar(&stopTimeout, "stop-timeout", 15*time.Second, "graceful shutdown budget")
	flag.Parse()

	if cronExpr != "" {
		if err := previewCron(os.Stdout, cronExpr, 5); err != nil {
			fmt.Fprintln(os.Stderr, "invalid cron expression:", err)
			os.Exit(1)
		}
		return
	}
	if validateOnly {
		if err := validate(cfgPath); err != nil {
			fmt.Fprintln(os.Stderr, "invalid config:", err)
			os.Exit(1)
		}
		fmt.Println("config ok:", cfgPath)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	a, err := app.New(ctx, cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	var reason app.StopReason
	select {
	case s := <-sigs:
		reason = app.StopSIGINT
		if s == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	stopErr := a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if stopErr != nil {
		fmt.Fprintln(os.Stderr, "stop:", stopErr)
		os.Exit(1)
	}
}

// previewCron prints the next n fire times of expr in the local zone.
func previewCron(w io.Writer, expr string, n int) error {
	now := time.Now()
	if _, err := cronexpr.FirstFireTime(expr, now); err != nil {
		return err
	}
	sched, err := cronexpr.Parse(expr)
	if err != nil {
		return err
	}
	for _, t := range cronexpr.NextN(sched, now, n) {
		fmt.Fprintln(w, t.Format(time.RFC3339))
	}
	return nil
}

func validate(path string) error {
	m := config.NewManager(path, logx.Nop())
	m.SetValidator(app.ValidateConfig)
	_, err := m.Load(context.Background())
	return err
}
