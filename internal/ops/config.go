package ops

import (
	"strings"
	"time"

	"jobreg/internal/config"
)

const defaultAddr = "127.0.0.1:9090"

type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	MutexProfileFraction int
	BlockProfileRate     int
}

// FromConfig maps the ops config section, parsing its durations.
func FromConfig(c config.OpsConfig) (Config, error) {
	rt, err := config.ParseDurationOrDefault("ops.read_timeout", c.ReadTimeout, 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	wt, err := config.ParseDurationField("ops.write_timeout", c.WriteTimeout)
	if err != nil {
		return Config{}, err
	}
	it, err := config.ParseDurationOrDefault("ops.idle_timeout", c.IdleTimeout, 60*time.Second)
	if err != nil {
		return Config{}, err
	}
	addr := strings.TrimSpace(c.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	return Config{
		Enabled:              c.Enabled,
		Addr:                 addr,
		Token:                strings.TrimSpace(c.Token),
		AllowInsecure:        c.AllowInsecure,
		Pprof:                c.Pprof,
		ReadTimeout:          rt,
		WriteTimeout:         wt,
		IdleTimeout:          it,
		MutexProfileFraction: c.MutexProfileFraction,
		BlockProfileRate:     c.BlockProfileRate,
	}, nil
}

func needsRestart(a, b Config) bool {
	return a.Addr != b.Addr ||
		a.Token != b.Token ||
		a.AllowInsecure != b.AllowInsecure ||
		a.Pprof != b.Pprof ||
		a.ReadTimeout != b.ReadTimeout ||
		a.WriteTimeout != b.WriteTimeout ||
		a.IdleTimeout != b.IdleTimeout
}
