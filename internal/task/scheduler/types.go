package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"jobreg/internal/eventbus"
	"jobreg/internal/metrics"
	"jobreg/internal/registry"
	"jobreg/pkg/logx"
)

var (
	ErrTriggerExists = errors.New("trigger already exists")
	ErrJobExists     = errors.New("job already exists")
)

const defaultJobTimeout = 5 * time.Minute

// Config controls the trigger engine.
type Config struct {
	Timezone       string        // IANA TZ, e.g. "Asia/Jakarta"; empty means Local
	DefaultTimeout time.Duration // per-fire timeout unless the job overrides it
}

// TimeoutJob is implemented by jobs that carry their own execution timeout.
type TimeoutJob interface {
	Timeout() time.Duration
}

type triggerDef struct {
	trig    registry.Trigger
	sched   cron.Schedule
	state   registry.TriggerState
	entryID cron.EntryID
	// gen changes on every replacement so fires from a removed entry are ignored.
	gen uint64
}

type Service struct {
	mu sync.Mutex

	log     logx.Logger
	cfg     Config
	loc     *time.Location
	bus     eventbus.Bus
	metrics metrics.Sink
	now     func() time.Time

	c         *cron.Cron
	runCtx    context.Context
	cancelRun context.CancelFunc

	jobs     map[registry.JobKey]registry.JobDetail
	triggers map[registry.TriggerKey]*triggerDef
	gen      uint64

	// Skip warnings are throttled per trigger.
	limMu    sync.Mutex
	limiters map[registry.TriggerKey]*rate.Limiter
}

// TriggerInfo describes one trigger in a Snapshot.
type TriggerInfo struct {
	Trigger     string                `json:"trigger"`
	Job         string                `json:"job"`
	Cron        string                `json:"cron"`
	Description string                `json:"description,omitempty"`
	State       registry.TriggerState `json:"state"`
	JobPresent  bool                  `json:"job_present"`
	StartAt     time.Time             `json:"start_at,omitempty"`
	Next        time.Time             `json:"next,omitempty"`
	Prev        time.Time             `json:"prev,omitempty"`
}

type Snapshot struct {
	Running        bool          `json:"running"`
	Timezone       string        `json:"timezone"`
	DefaultTimeout time.Duration `json:"default_timeout"`
	Jobs           int           `json:"jobs"`
	Triggers       []TriggerInfo `json:"triggers"`
}
