// Package monitoring escalates recovery events that need a human to a
// webhook.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/RealSaake/SkillBridge-sub000/internal/config"
	"github.com/RealSaake/SkillBridge-sub000/internal/fault"
	"github.com/RealSaake/SkillBridge-sub000/internal/recovery"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRetriesExhausted  AlertType = "retries_exhausted"
	AlertReconnectRequired AlertType = "reconnect_required"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type         AlertType      `json:"type"`
	Severity     string         `json:"severity"`
	Operation    string         `json:"operation"`
	ControllerID string         `json:"controller_id"`
	Message      string         `json:"message"`
	Details      map[string]any `json:"details,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Alerter is a recovery.Sink that turns exhaustion and auth failures into
// webhook alerts. Record never blocks; alerts are queued and delivered by
// Run or Drain.
type Alerter struct {
	cfg     config.MonitoringConfig
	client  *http.Client
	queue   chan Alert
	dropped atomic.Int64
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	if cfg.TimeoutSecs < 1 {
		cfg.TimeoutSecs = 10
	}
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		queue:  make(chan Alert, cfg.QueueSize),
	}
}

// Evaluate maps a recovery event to an alert, if it warrants one.
func (a *Alerter) Evaluate(e recovery.Event) (Alert, bool) {
	alert := Alert{
		Operation:    e.Operation,
		ControllerID: e.ControllerID,
		Timestamp:    e.Timestamp.UTC(),
		Details: map[string]any{
			"kind":    string(e.Kind),
			"attempt": e.Attempt,
		},
	}
	if e.Err != nil {
		alert.Details["error"] = e.Err.Error()
	}

	switch {
	case e.Name == recovery.EventExhausted:
		alert.Type = AlertRetriesExhausted
		alert.Severity = "high"
		alert.Message = fmt.Sprintf("%s exhausted its retries after %d attempt(s) (%s)",
			e.Operation, e.Attempt, e.Kind)
	case e.Name == recovery.EventFailureClassified && e.Kind == fault.KindAuth:
		alert.Type = AlertReconnectRequired
		alert.Severity = "medium"
		alert.Message = fmt.Sprintf("%s needs its credentials reconnected", e.Operation)
	default:
		return Alert{}, false
	}
	return alert, true
}

// Record queues an alert for e. When the queue is full the alert is dropped
// and counted.
func (a *Alerter) Record(e recovery.Event) {
	if a.cfg.WebhookURL == "" {
		return
	}
	alert, ok := a.Evaluate(e)
	if !ok {
		return
	}
	select {
	case a.queue <- alert:
	default:
		a.dropped.Add(1)
		zap.L().Warn("monitoring: alert queue full, dropping alert",
			zap.String("type", string(alert.Type)),
			zap.String("operation", alert.Operation),
		)
	}
}

// Dropped returns how many alerts were discarded because the queue was full.
func (a *Alerter) Dropped() int64 { return a.dropped.Load() }

// Run delivers queued alerts until ctx is cancelled.
func (a *Alerter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case alert := <-a.queue:
			a.SendAlerts(ctx, []Alert{alert})
		}
	}
}

// Drain delivers every alert queued so far and returns how many were sent.
func (a *Alerter) Drain(ctx context.Context) int {
	var alerts []Alert
loop:
	for {
		select {
		case alert := <-a.queue:
			alerts = append(alerts, alert)
		default:
			break loop
		}
	}
	return a.SendAlerts(ctx, alerts)
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
				zap.String("operation", alert.Operation),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
			zap.String("operation", alert.Operation),
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

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
