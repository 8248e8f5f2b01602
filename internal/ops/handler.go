package ops

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	hpprof "net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobreg/internal/registry"
	"jobreg/internal/runtime/supervisor"
	"jobreg/internal/storage"
	"jobreg/internal/task/scheduler"
	"jobreg/pkg/logx"
)

// Registry is the subset of registry.Manager the control endpoints drive.
type Registry interface {
	Describe(key registry.TriggerKey) (registry.Binding, error)
	Pause(ref registry.Ref) error
	Resume(ref registry.Ref, cronExpr string) error
	Modify(key registry.TriggerKey, cronExpr string) error
}

type Engine interface {
	Running() bool
	Snapshot() scheduler.Snapshot
}

type AuditReader interface {
	RecentAudit(ctx context.Context, limit int) ([]storage.AuditEntry, error)
}

// Deps are the components behind the endpoints. Nil Audit or Gatherer
// disables the matching endpoint.
type Deps struct {
	Registry   Registry
	Engine     Engine
	Audit      AuditReader
	Gatherer   prometheus.Gatherer
	Supervisor *supervisor.Supervisor
}

type cronBody struct {
	Cron string `json:"cron"`
}

type handler struct {
	deps Deps
	log  logx.Logger
}

// NewRouter builds the ops routes. token, when set, is required on every route.
func NewRouter(deps Deps, token string, pprof bool, log logx.Logger) http.Handler {
	h := &handler{deps: deps, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)
	r.Use(bearerAuth(token))

	r.Get("/healthz", h.health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/triggers", h.listTriggers)
	r.Route("/triggers/{group}/{name}", func(r chi.Router) {
		r.Get("/", h.describe)
		r.Put("/", h.modify)
		r.Post("/pause", h.pause)
		r.Post("/resume", h.resume)
	})
	r.Get("/audit", h.audit)

	if pprof {
		r.HandleFunc("/debug/pprof/", hpprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", hpprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", hpprof.Trace)
		r.Handle("/debug/pprof/{profile}", http.HandlerFunc(hpprof.Index))
	}
	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Status  string               `json:"status"`
		Engine  bool                 `json:"engine_running"`
		Runtime *supervisor.Snapshot `json:"runtime,omitempty"`
	}{Status: "ok"}
	if h.deps.Engine != nil {
		resp.Engine = h.deps.Engine.Running()
		if !resp.Engine {
			resp.Status = "degraded"
		}
	}
	if sup := h.deps.Supervisor; sup != nil {
		snap := sup.Snapshot()
		resp.Runtime = &snap
		if snap.FirstError != "" {
			resp.Status = "degraded"
		}
	}
	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (h *handler) listTriggers(w http.ResponseWriter, r *http.Request) {
	if h.deps.Engine == nil {
		writeError(w, http.StatusNotFound, "engine not available")
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Engine.Snapshot())
}

func triggerKey(r *http.Request) registry.TriggerKey {
	return registry.TriggerKey{Name: chi.URLParam(r, "name"), Group: chi.URLParam(r, "group")}
}

type bindingView struct {
	Trigger     string                `json:"trigger"`
	Job         string                `json:"job"`
	Cron        string                `json:"cron"`
	Description string                `json:"description,omitempty"`
	State       registry.TriggerState `json:"state,omitempty"`
	Next        *time.Time            `json:"next,omitempty"`
}

func viewOf(b registry.Binding) bindingView {
	v := bindingView{
		Trigger:     b.Trigger.Key.String(),
		Job:         b.Trigger.JobKey.String(),
		Cron:        b.Trigger.CronExpression,
		Description: b.Trigger.Description,
		State:       b.State,
	}
	if !b.Next.IsZero() && b.State != registry.StatePaused {
		next := b.Next
		v.Next = &next
	}
	return v
}

func (h *handler) describe(w http.ResponseWriter, r *http.Request) {
	b, err := h.deps.Registry.Describe(triggerKey(r))
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(b))
}

func (h *handler) modify(w http.ResponseWriter, r *http.Request) {
	var body cronBody
	if err := decodeBody(w, r, &body); err != nil || strings.TrimSpace(body.Cron) == "" {
		writeError(w, http.StatusBadRequest, `body must be {"cron": "<expression>"}`)
		return
	}
	key := triggerKey(r)
	if err := h.deps.Registry.Modify(key, body.Cron); err != nil {
		writeRegistryError(w, err)
		return
	}
	h.describe(w, r)
}

// refOf resolves the job bound to the trigger in the URL.
func (h *handler) refOf(r *http.Request) (registry.Ref, registry.Binding, error) {
	key := triggerKey(r)
	b, err := h.deps.Registry.Describe(key)
	if err != nil {
		return registry.Ref{}, b, err
	}
	return registry.Ref{Job: b.Trigger.JobKey, Trigger: key}, b, nil
}

func (h *handler) pause(w http.ResponseWriter, r *http.Request) {
	ref, _, err := h.refOf(r)
	if err == nil {
		err = h.deps.Registry.Pause(ref)
	}
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	h.describe(w, r)
}

// resume accepts an optional {"cron": ...} body; the stored expression is used otherwise.
func (h *handler) resume(w http.ResponseWriter, r *http.Request) {
	var body cronBody
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	ref, b, err := h.refOf(r)
	if err == nil {
		expr := strings.TrimSpace(body.Cron)
		if expr == "" {
			expr = b.Trigger.CronExpression
		}
		err = h.deps.Registry.Resume(ref, expr)
	}
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	h.describe(w, r)
}

func (h *handler) audit(w http.ResponseWriter, r *http.Request) {
	if h.deps.Audit == nil {
		writeError(w, http.StatusNotFound, "audit storage disabled")
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := h.deps.Audit.RecentAudit(r.Context(), limit)
	if err != nil {
		h.log.Warn("audit read failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "audit read failed")
		return
	}
	if entries == nil {
		entries = []storage.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		h.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", sw.status),
			logx.Duration("took", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps streaming handlers (pprof trace) working behind the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// bearerAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func bearerAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.URL.Query().Get("token")
			if got == "" {
				if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
					got = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
				}
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(tok)) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrInvalidSchedule):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
