package app

import (
	"fmt"
	"strings"
	"time"

	"jobreg/internal/config"
	"jobreg/internal/eventbus"
	"jobreg/internal/storage"
	"jobreg/pkg/logx"
)

// ---- config section mapping ----

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "none":
		return storage.Config{}, false, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapSchedulerConfig(cfg *config.Config) (string, time.Duration, error) {
	d, err := config.ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout)
	if err != nil {
		return "", 0, err
	}
	return strings.TrimSpace(cfg.Scheduler.Timezone), d, nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapNATSConfig(cfg *config.Config) (eventbus.NATSConfig, bool) {
	n := cfg.Events.NATS
	if n == nil || strings.TrimSpace(n.URL) == "" {
		return eventbus.NATSConfig{}, false
	}
	return eventbus.NATSConfig{
		URL:           strings.TrimSpace(n.URL),
		SubjectPrefix: strings.TrimSpace(n.SubjectPrefix),
		ClientName:    strings.TrimSpace(n.ClientName),
		Buffer:        n.Buffer,
	}, true
}
