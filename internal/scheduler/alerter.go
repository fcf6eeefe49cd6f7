package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geocover/internal/config"
)

// Alert is posted to the webhook when a scheduled run fails.
type Alert struct {
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AlertRunFailed marks a failed scheduled run.
const AlertRunFailed = "scrape_run_failed"

// Alerter posts alerts to a webhook.
type Alerter struct {
	url    string
	client *http.Client
}

// NewAlerter returns nil when no webhook is configured.
func NewAlerter(cfg config.AlertConfig) *Alerter {
	if cfg.WebhookURL == "" {
		return nil
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Alerter{url: cfg.WebhookURL, client: &http.Client{Timeout: timeout}}
}

// Send posts one alert. A nil Alerter sends nothing.
func (a *Alerter) Send(ctx context.Context, alert Alert) error {
	if a == nil {
		return nil
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "scheduler: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "scheduler: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "scheduler: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("scheduler: webhook returned status %d", resp.StatusCode)
	}
	zap.L().Info("scheduler: alert sent", zap.String("type", alert.Type), zap.String("severity", alert.Severity))
	return nil
}
