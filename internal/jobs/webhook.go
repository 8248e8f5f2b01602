package jobs

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"jobreg/internal/registry"
)

// Webhook request headers.
const (
	HeaderFireID    = "X-Jobreg-Fire-ID"
	HeaderSignature = "X-Jobreg-Signature"
)

// WebhookPayload is the JSON body posted for each fire.
type WebhookPayload struct {
	FireID      string    `json:"fire_id"`
	Job         string    `json:"job"`
	Trigger     string    `json:"trigger"`
	Cron        string    `json:"cron"`
	ScheduledAt time.Time `json:"scheduled_at"`
	FiredAt     time.Time `json:"fired_at"`
}

// Webhook POSTs a signed WebhookPayload to URL. Any non-2xx status is an error.
type Webhook struct {
	URL    string
	Secret string
	Limit  time.Duration
	Client *http.Client
}

func (w *Webhook) Timeout() time.Duration { return w.Limit }

func (w *Webhook) Execute(ctx context.Context) error {
	p := WebhookPayload{FiredAt: time.Now().UTC()}
	if fi, ok := registry.FireFromContext(ctx); ok {
		p.FireID = fi.ID
		p.Job = fi.Job.String()
		p.Trigger = fi.Trigger.String()
		p.Cron = fi.Cron
		p.ScheduledAt = fi.ScheduledAt.UTC()
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderFireID, p.FireID)
	if w.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(w.Secret, body))
	}

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: %s returned %d", w.URL, resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature is for receivers checking the signature header.
func VerifySignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
