package app

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"jobreg/internal/config"
	"jobreg/internal/jobs"
	"jobreg/internal/registry"
	"jobreg/pkg/logx"
)

// Registrar is the registry surface the reconciler drives.
type Registrar interface {
	Register(spec registry.JobSpec) error
	Pause(ref registry.Ref) error
	Resume(ref registry.Ref, cronExpr string) error
	Remove(ref registry.Ref) bool
	Modify(key registry.TriggerKey, cronExpr string) error
}

// Reconciler moves the registry from the last applied job list to a new one.
// A job whose change failed keeps its previous entry, so the next Apply retries it.
type Reconciler struct {
	reg    Registrar
	log    logx.Logger
	client *http.Client

	mu      sync.Mutex
	applied map[string]config.JobConfig
}

func NewReconciler(reg Registrar, client *http.Client, log logx.Logger) *Reconciler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reconciler{
		reg:     reg,
		log:     log.With(logx.String("comp", "reconcile")),
		client:  client,
		applied: map[string]config.JobConfig{},
	}
}

// ReconcileResult counts what one Apply did.
type ReconcileResult struct {
	Added, Updated, Removed, Unchanged int
}

func refOf(jc config.JobConfig) registry.Ref {
	g := jc.GroupOrDefault()
	return registry.Ref{
		Job:     registry.JobKey{Name: strings.TrimSpace(jc.Name), Group: g},
		Trigger: registry.TriggerKey{Name: jc.TriggerOrDefault(), Group: g},
	}
}

// Apply reconciles the registry with want. Errors for individual jobs are
// joined; the remaining jobs are still applied.
func (r *Reconciler) Apply(want []config.JobConfig) (ReconcileResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		res  ReconcileResult
		errs []error
		seen = make(map[string]struct{}, len(want))
	)
	for _, jc := range want {
		id := jc.ID()
		seen[id] = struct{}{}
		old, had := r.applied[id]
		if had && old == jc {
			res.Unchanged++
			continue
		}
		if err := r.applyOne(jc, old, had); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", id, err))
			continue
		}
		r.applied[id] = jc
		if had {
			res.Updated++
		} else {
			res.Added++
		}
	}

	dropped := make([]string, 0)
	for id := range r.applied {
		if _, ok := seen[id]; !ok {
			dropped = append(dropped, id)
		}
	}
	sort.Strings(dropped)
	for _, id := range dropped {
		if r.reg.Remove(refOf(r.applied[id])) {
			r.log.Info("job removed", logx.String("job", id))
		} else {
			r.log.Warn("job removal reported no trigger", logx.String("job", id))
		}
		delete(r.applied, id)
		res.Removed++
	}

	return res, errors.Join(errs...)
}

func (r *Reconciler) applyOne(jc, old config.JobConfig, had bool) error {
	ref := refOf(jc)
	if had && old.TriggerOrDefault() != jc.TriggerOrDefault() {
		r.reg.Remove(refOf(old))
		had = false
	}

	rescheduled := false
	switch {
	case !had || config.HashJob(old) != config.HashJob(jc):
		work, err := jobs.FromConfig(jc, r.log, r.client)
		if err != nil {
			return err
		}
		err = r.reg.Register(registry.JobSpec{
			Job:         ref.Job,
			Trigger:     ref.Trigger,
			Cron:        jc.Cron,
			Work:        work,
			Description: jc.Description,
		})
		if err != nil {
			return err
		}
		rescheduled = true
	case !strings.EqualFold(strings.TrimSpace(old.Cron), strings.TrimSpace(jc.Cron)):
		if err := r.reg.Modify(ref.Trigger, jc.Cron); err != nil {
			return err
		}
		rescheduled = true
	}

	// Rescheduling leaves the trigger NORMAL.
	switch {
	case jc.Paused && (rescheduled || !old.Paused):
		return r.reg.Pause(ref)
	case !jc.Paused && had && old.Paused && !rescheduled:
		return r.reg.Resume(ref, jc.Cron)
	}
	return nil
}

// Applied returns the job IDs currently under management.
func (r *Reconciler) Applied() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.applied))
	for id := range r.applied {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
