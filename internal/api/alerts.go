package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/paulaanasilva/mazephases/internal/orchestrator"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert event types
const (
	AlertPhasesFallback      = "phases_fallback"
	AlertMQTTDisconnected    = "mqtt_disconnected"
	AlertPostgresUnavailable = "postgres_unavailable"
)

// AlertPayload is the JSON structure sent to the webhook.
type AlertPayload struct {
	GameID    string                 `json:"game_id"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// outage tracks one dependency so it alerts once per outage after delay.
type outage struct {
	event    string
	severity string
	name     string
	delay    time.Duration
	since    time.Time
	alerted  bool
}

// check returns the alert to send for the observed state, if any.
func (o *outage) check(connected bool, now time.Time) *AlertPayload {
	if connected {
		recovered := o.alerted
		o.since, o.alerted = time.Time{}, false
		if !recovered {
			return nil
		}
		return &AlertPayload{Event: o.event, Severity: SeverityInfo, Message: o.name + " connection restored",
			Details: map[string]interface{}{"recovered_at": now.UTC().Format(time.RFC3339)}}
	}

	if o.since.IsZero() {
		o.since = now
	}
	if o.alerted || now.Sub(o.since) < o.delay {
		return nil
	}
	o.alerted = true
	return &AlertPayload{Event: o.event, Severity: o.severity, Message: o.name + " unavailable",
		Details: map[string]interface{}{
			"disconnected_since":   o.since.UTC().Format(time.RFC3339),
			"disconnected_seconds": int(now.Sub(o.since).Seconds()),
		}}
}

// Alerter posts operational alerts to a webhook. Without a webhook alerts
// are only logged.
type Alerter struct {
	webhookURL string
	gameID     string
	httpClient *http.Client
	logger     *zap.Logger

	mu       sync.Mutex
	mqtt     *outage
	postgres *outage
	wg       sync.WaitGroup
}

// NewAlerter reads MAZEPHASES_ALERT_WEBHOOK_URL and the optional
// MAZEPHASES_MQTT_ALERT_DELAY and MAZEPHASES_POSTGRES_ALERT_DELAY durations.
func NewAlerter(gameID string, logger *zap.Logger) *Alerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Alerter{
		webhookURL: os.Getenv("MAZEPHASES_ALERT_WEBHOOK_URL"),
		gameID:     gameID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		mqtt: &outage{event: AlertMQTTDisconnected, severity: SeverityWarning,
			name: "MQTT broker", delay: envDuration("MAZEPHASES_MQTT_ALERT_DELAY", 30*time.Second)},
		postgres: &outage{event: AlertPostgresUnavailable, severity: SeverityCritical,
			name: "PostgreSQL", delay: envDuration("MAZEPHASES_POSTGRES_ALERT_DELAY", 5*time.Second)},
	}
	if a.webhookURL != "" {
		logger.Info("alerts enabled",
			zap.Duration("mqtt_delay", a.mqtt.delay),
			zap.Duration("postgres_delay", a.postgres.delay))
	}
	return a
}

func envDuration(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// LoadCompleted alerts when a load fell back for any reason other than a
// deliberate redirect.
func (a *Alerter) LoadCompleted(out orchestrator.Outcome) {
	if !out.Fallback() || out.Navigated || out.Err == nil {
		return
	}
	// Runs without an external source always play the hardcoded set.
	if out.Strategy == orchestrator.StrategyNone {
		return
	}
	severity := SeverityWarning
	if out.Fatal() {
		severity = SeverityCritical
	}
	a.Send(AlertPayload{
		Event:    AlertPhasesFallback,
		Severity: severity,
		Message:  "serving hardcoded phases",
		Details: map[string]interface{}{
			"load_id":  out.LoadID,
			"strategy": out.Strategy.String(),
			"kind":     out.Err.Kind.String(),
			"error":    out.Err.Error(),
		},
	})
}

// CheckDependencies feeds the current connection states to the trackers.
func (a *Alerter) CheckDependencies(mqttConnected, postgresConnected bool) {
	now := time.Now()

	a.mu.Lock()
	alerts := []*AlertPayload{a.mqtt.check(mqttConnected, now), a.postgres.check(postgresConnected, now)}
	a.mu.Unlock()

	for _, p := range alerts {
		if p != nil {
			a.Send(*p)
		}
	}
}

// Run checks the readiness flags every interval until ctx is done.
// Optional dependencies are treated as connected.
func (a *Alerter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			readiness.mu.RLock()
			mqttOK := readiness.mqttConnected || readiness.mqttOptional
			pgOK := readiness.postgresConnected || readiness.postgresOptional
			readiness.mu.RUnlock()
			a.CheckDependencies(mqttOK, pgOK)
		}
	}
}

// Send posts payload to the webhook in the background.
func (a *Alerter) Send(payload AlertPayload) {
	payload.GameID = a.gameID
	if payload.Timestamp == "" {
		payload.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if a.webhookURL == "" {
		a.logger.Warn("alert",
			zap.String("event", payload.Event),
			zap.String("severity", payload.Severity),
			zap.String("message", payload.Message),
			zap.Any("details", payload.Details))
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.post(payload)
	}()
}

// Wait blocks until in-flight webhook posts finish.
func (a *Alerter) Wait() {
	a.wg.Wait()
}

func (a *Alerter) post(payload AlertPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		a.logger.Warn("alert marshal failed", zap.Error(err))
		return
	}

	resp, err := a.httpClient.Post(a.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		a.logger.Warn("alert webhook failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		a.logger.Warn("alert webhook rejected", zap.Int("status", resp.StatusCode))
	}
}
