package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/demographics-cli/internal/config"
	"github.com/sells-group/demographics-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertBatchFailureRate AlertType = "batch_failure_rate"
	AlertBatchFatal       AlertType = "batch_fatal"
	AlertQuotaExhausted   AlertType = "quota_exhausted"
)

// minFinishedForRate keeps a handful of early failures from paging anyone.
const minFinishedForRate = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RunOutcome is what the alerter needs to know about a finished batch run.
type RunOutcome struct {
	RunID  string
	State  string
	Fatal  bool
	Quota  bool
	Counts model.RunCounts
}

// Alerter evaluates finished batch runs against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks a run outcome and returns any alerts.
func (a *Alerter) Evaluate(run RunOutcome) []Alert {
	var alerts []Alert
	now := time.Now().UTC()
	c := run.Counts

	if run.Fatal {
		alerts = append(alerts, Alert{
			Type:     AlertBatchFatal,
			Severity: "high",
			Message:  fmt.Sprintf("Batch run %s stopped before processing (state %s)", run.RunID, run.State),
			Details: map[string]any{
				"run_id": run.RunID,
				"state":  run.State,
			},
			Timestamp: now,
		})
	}

	finished := c.Enriched + c.Failed
	rate := c.FailureRate()
	if finished >= minFinishedForRate && rate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertBatchFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Batch failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished)",
				rate*100, a.cfg.FailureRateThreshold*100, c.Failed, finished,
			),
			Details: map[string]any{
				"run_id":       run.RunID,
				"failure_rate": rate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       c.Failed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if run.Quota {
		alerts = append(alerts, Alert{
			Type:     AlertQuotaExhausted,
			Severity: "info",
			Message: fmt.Sprintf(
				"Daily quota reached after %d properties (%d API calls); %d pending",
				c.Processed, c.APICallsUsed, c.Total-c.Processed,
			),
			Details: map[string]any{
				"run_id":         run.RunID,
				"processed":      c.Processed,
				"api_calls_used": c.APICallsUsed,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
