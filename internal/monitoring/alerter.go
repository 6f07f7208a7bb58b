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

	"github.com/coldreach/coldreach/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertErrorRate       AlertType = "session_error_rate"
	AlertExhaustedRate   AlertType = "session_exhausted_rate"
	AlertDeliveryFailure AlertType = "delivery_failure"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitorConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitorConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// Rate alerts need at least MinSessions sessions in the window.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()
	enough := snap.Sessions >= max(a.cfg.MinSessions, 1)

	if enough && a.cfg.ErrorRateThreshold > 0 && snap.ErrorRate > a.cfg.ErrorRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertErrorRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Session error rate %.1f%% exceeds threshold %.1f%% (%d errored / %d sessions in last %dh)",
				snap.ErrorRate*100, a.cfg.ErrorRateThreshold*100,
				snap.Errored, snap.Sessions, snap.LookbackHours,
			),
			Details: map[string]any{
				"error_rate":  snap.ErrorRate,
				"threshold":   a.cfg.ErrorRateThreshold,
				"errored":     snap.Errored,
				"sessions":    snap.Sessions,
				"error_kinds": snap.ErrorKinds,
			},
			Timestamp: now,
		})
	}

	if enough && a.cfg.ExhaustedRateThreshold > 0 && snap.ExhaustedRate > a.cfg.ExhaustedRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertExhaustedRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%.1f%% of sessions exhausted their attempts without a passing draft (threshold %.1f%%, last %dh)",
				snap.ExhaustedRate*100, a.cfg.ExhaustedRateThreshold*100, snap.LookbackHours,
			),
			Details: map[string]any{
				"exhausted_rate": snap.ExhaustedRate,
				"threshold":      a.cfg.ExhaustedRateThreshold,
				"exhausted":      snap.Exhausted,
				"avg_score":      snap.AvgScore,
			},
			Timestamp: now,
		})
	}

	if n := snap.DeliveryFailures(); n > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertDeliveryFailure,
			Severity: "high",
			Message:  fmt.Sprintf("%d accepted draft(s) failed delivery in last %dh", n, snap.LookbackHours),
			Details: map[string]any{
				"failed": n,
				"sent":   snap.Sent,
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
