package jobs

import (
	"fmt"
	"net/http"
	"strings"

	"jobreg/internal/config"
	"jobreg/internal/registry"
	"jobreg/pkg/logx"
)

// FromConfig builds the work unit declared by jc.
func FromConfig(jc config.JobConfig, log logx.Logger, client *http.Client) (registry.Job, error) {
	limit, err := jc.TimeoutLimit()
	if err != nil {
		return nil, err
	}
	log = log.With(logx.String("job", jc.ID()))

	switch strings.ToLower(strings.TrimSpace(jc.Kind)) {
	case config.KindShell:
		return &Shell{Command: jc.Command, Limit: limit, Log: log}, nil
	case config.KindWebhook:
		return &Webhook{URL: strings.TrimSpace(jc.URL), Secret: jc.Secret, Limit: limit, Client: client}, nil
	case config.KindLog:
		msg := jc.Message
		if strings.TrimSpace(msg) == "" {
			msg = "job fired"
		}
		return &LogLine{Message: msg, Log: log}, nil
	default:
		return nil, fmt.Errorf("unknown job kind %q", jc.Kind)
	}
}
