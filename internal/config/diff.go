package config

import (
	"sort"
	"strings"

	"jobreg/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets or tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) ||
		strings.TrimSpace(oldCfg.Scheduler.DefaultTimeout) != strings.TrimSpace(newCfg.Scheduler.DefaultTimeout) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.default_timeout", strings.TrimSpace(newCfg.Scheduler.DefaultTimeout)),
		)
	}

	// Ops (never log token)
	o, n := oldCfg.Ops, newCfg.Ops
	if o.Enabled != n.Enabled ||
		strings.TrimSpace(o.Addr) != strings.TrimSpace(n.Addr) ||
		o.AllowInsecure != n.AllowInsecure ||
		o.Pprof != n.Pprof ||
		strings.TrimSpace(o.ReadTimeout) != strings.TrimSpace(n.ReadTimeout) ||
		strings.TrimSpace(o.WriteTimeout) != strings.TrimSpace(n.WriteTimeout) ||
		strings.TrimSpace(o.IdleTimeout) != strings.TrimSpace(n.IdleTimeout) ||
		o.MutexProfileFraction != n.MutexProfileFraction ||
		o.BlockProfileRate != n.BlockProfileRate ||
		(strings.TrimSpace(o.Token) != "") != (strings.TrimSpace(n.Token) != "") {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", n.Enabled),
			logx.String("ops.addr", strings.TrimSpace(n.Addr)),
			logx.Bool("ops.token_set", strings.TrimSpace(n.Token) != ""),
			logx.Bool("ops.allow_insecure", n.AllowInsecure),
			logx.Bool("ops.pprof", n.Pprof),
		)
	}

	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs, logx.Bool("metrics.enabled", newCfg.Metrics.Enabled))
	}

	var oNATS, nNATS NATSConfig
	if oldCfg.Events.NATS != nil {
		oNATS = *oldCfg.Events.NATS
	}
	if newCfg.Events.NATS != nil {
		nNATS = *newCfg.Events.NATS
	}
	if (oldCfg.Events.NATS != nil) != (newCfg.Events.NATS != nil) || oNATS != nNATS {
		changed = append(changed, "events")
		attrs = append(attrs,
			logx.Bool("events.nats_enabled", newCfg.Events.NATS != nil),
			logx.String("events.nats_subject_prefix", nNATS.SubjectPrefix),
		)
	}

	// Storage: nil means disabled.
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if s := oldCfg.Storage; s != nil {
		oDriver, oBusy, oPathSet = strings.TrimSpace(s.Driver), strings.TrimSpace(s.BusyTimeout), strings.TrimSpace(s.Path) != ""
	}
	if s := newCfg.Storage; s != nil {
		nDriver, nBusy, nPathSet = strings.TrimSpace(s.Driver), strings.TrimSpace(s.BusyTimeout), strings.TrimSpace(s.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	if jc := diffJobs(oldCfg.Jobs, newCfg.Jobs); len(jc) > 0 {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Int("jobs.changed_count", len(jc)),
			logx.Int("jobs.count", len(newCfg.Jobs)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// diffJobs returns the IDs of jobs added, removed or changed in any field.
func diffJobs(oldJobs, newJobs []JobConfig) []string {
	oldM := make(map[string]JobConfig, len(oldJobs))
	for _, j := range oldJobs {
		oldM[j.ID()] = j
	}
	newM := make(map[string]JobConfig, len(newJobs))
	for _, j := range newJobs {
		newM[j.ID()] = j
	}

	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		o, inOld := oldM[id]
		n, inNew := newM[id]
		if inOld != inNew || o != n {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
