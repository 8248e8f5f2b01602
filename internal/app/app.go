package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"jobreg/internal/config"
	"jobreg/internal/cronexpr"
	"jobreg/internal/eventbus"
	"jobreg/internal/metrics"
	"jobreg/internal/ops"
	"jobreg/internal/registry"
	"jobreg/internal/runtime/supervisor"
	"jobreg/internal/storage"
	"jobreg/internal/task/scheduler"
	"jobreg/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.MemBus

	store   storage.Store
	promReg *prometheus.Registry
	sink    metrics.Sink
	nc      *nats.Conn

	engine *scheduler.Service
	reg    *registry.Manager
	recon  *Reconciler
	ops    *ops.Service

	sup *supervisor.Supervisor
}

// New loads and validates the config at cfgPath and builds every component.
// Nothing runs until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	bootLog := logx.NewConsole("info")
	cfgm := config.NewManager(cfgPath, bootLog.With(logx.String("comp", "config")))
	cfgm.SetValidator(ValidateConfig)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	log = log.With(logx.String("comp", "app"))

	a := &App{cfgm: cfgm, log: log, logs: logSvc, bus: eventbus.New(), sink: metrics.NewNoopSink()}

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log)
		if err != nil {
			return nil, err
		}
		a.store = st
		log.Info("audit storage enabled", logx.String("driver", sc.Driver))
	}

	if cfg.Metrics.Enabled {
		a.promReg = prometheus.NewRegistry()
		a.promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.sink = metrics.NewPrometheusSink(a.promReg, log)
	}

	if nc, enabled := mapNATSConfig(cfg); enabled {
		conn, err := eventbus.DialNATS(nc, log.With(logx.String("comp", "nats")))
		if err != nil {
			a.closeStores()
			return nil, err
		}
		a.nc = conn
	}

	tz, timeout, err := mapSchedulerConfig(cfg)
	if err != nil {
		a.closeStores()
		return nil, err
	}
	a.engine = scheduler.New(scheduler.Config{Timezone: tz, DefaultTimeout: timeout}, log, a.bus, a.sink)

	opts := []registry.Option{
		registry.WithLogger(log),
		registry.WithMetrics(a.sink),
		registry.WithValidator(&cronexpr.Validator{LocationFunc: a.engine.Location}),
	}
	if a.store != nil {
		opts = append(opts, registry.WithAuditor(a.store))
	}
	a.reg = registry.New(a.engine, opts...)
	a.recon = NewReconciler(a.reg, &http.Client{}, log)
	return a, nil
}

// Registry exposes the job registry for embedding programs.
func (a *App) Registry() *registry.Manager { return a.reg }

// OpsAddr returns the bound ops server address, or "".
func (a *App) OpsAddr() string {
	if a.ops == nil {
		return ""
	}
	return a.ops.Addr()
}

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	cfg := a.cfgm.Get()

	a.engine.Start(a.sup.Context())
	a.reconcile(cfg.Jobs)

	deps := ops.Deps{Registry: a.reg, Engine: a.engine, Supervisor: a.sup}
	if a.store != nil {
		deps.Audit = a.store
	}
	if a.promReg != nil {
		deps.Gatherer = a.promReg
	}
	a.ops = ops.New(ops.Config{}, deps, a.log)
	if oc, err := ops.FromConfig(cfg.Ops); err == nil {
		a.ops.Reconfigure(a.sup.Context(), oc)
	}

	if nc, enabled := mapNATSConfig(cfg); enabled && a.nc != nil {
		fwd := eventbus.NewForwarder(a.bus, a.nc, nc, a.log)
		a.sup.Go("events.nats", fwd.Run)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("events.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := cfg
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started",
		logx.Int("jobs", len(cfg.Jobs)),
		logx.String("tz", a.engine.Location().String()),
	)
	return nil
}

func (a *App) reconcile(want []config.JobConfig) {
	res, err := a.recon.Apply(want)
	fields := []logx.Field{
		logx.Int("added", res.Added),
		logx.Int("updated", res.Updated),
		logx.Int("removed", res.Removed),
		logx.Int("unchanged", res.Unchanged),
	}
	if err != nil {
		a.log.Warn("job reconcile incomplete", append(fields, logx.Err(err))...)
		return
	}
	a.log.Info("jobs reconciled", fields...)
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLoggingConfig(next))

	for _, s := range sections {
		switch s {
		case "storage", "metrics", "events":
			a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
		}
	}

	if tz, timeout, err := mapSchedulerConfig(next); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(scheduler.Config{Timezone: tz, DefaultTimeout: timeout})
	}

	if oc, err := ops.FromConfig(next.Ops); err != nil {
		a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
	} else {
		a.ops.Reconfigure(ctx, oc)
	}

	a.reconcile(next.Jobs)

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts components down in dependency order. Each step is bounded by
// ctx; a step that overruns is logged and abandoned.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeStores()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	var errs []error
	step := func(name string, fn func(context.Context) error) {
		start := time.Now()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(ctx)
		}()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-ctx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("ops", func(c context.Context) error { a.ops.Stop(c); return nil })
	step("engine", func(c context.Context) error { a.engine.Stop(c); return nil })
	step("supervisor", a.sup.Wait)
	step("stores", func(context.Context) error { return a.closeStores() })

	a.log.Info("stopped", logx.String("reason", string(reason)))
	_ = a.logs.Close()
	return errors.Join(errs...)
}

func (a *App) closeStores() error {
	var errs []error
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.nc.Close()
			errs = append(errs, err)
		}
		a.nc = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
		a.store = nil
	}
	return errors.Join(errs...)
}
