package api

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/paulaanasilva/mazephases/internal/events"
	"github.com/paulaanasilva/mazephases/internal/orchestrator"
	"github.com/paulaanasilva/mazephases/internal/version"
)

var metricsState = &MetricsState{}

// MetricsState holds counters for the /metrics endpoint.
type MetricsState struct {
	mu               sync.RWMutex
	startTime        time.Time
	gameID           string
	loadsTotal       uint64
	fallbacksTotal   uint64
	navigationsTotal uint64
	servedTotal      uint64
	invalidTotal     uint64
	lastLoadSource   orchestrator.Source
}

// InitMetrics resets the metrics. Must be called at startup.
func InitMetrics(gameID string) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.startTime = time.Now()
	metricsState.gameID = gameID
	metricsState.loadsTotal = 0
	metricsState.fallbacksTotal = 0
	metricsState.navigationsTotal = 0
	metricsState.servedTotal = 0
	metricsState.invalidTotal = 0
	metricsState.lastLoadSource = orchestrator.SourceNone
}

// RecordLoad counts a completed load.
func RecordLoad(out orchestrator.Outcome) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.loadsTotal++
	if out.Fallback() {
		metricsState.fallbacksTotal++
	}
	if out.Navigated {
		metricsState.navigationsTotal++
	}
	metricsState.lastLoadSource = out.Source
}

func recordServed() {
	metricsState.mu.Lock()
	metricsState.servedTotal++
	metricsState.mu.Unlock()
}

func recordInvalid() {
	metricsState.mu.Lock()
	metricsState.invalidTotal++
	metricsState.mu.Unlock()
}

// metricsHandler writes Prometheus text format.
func metricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	metricsState.mu.RLock()
	startTime := metricsState.startTime
	gameID := metricsState.gameID
	loads := metricsState.loadsTotal
	fallbacks := metricsState.fallbacksTotal
	navigations := metricsState.navigationsTotal
	served := metricsState.servedTotal
	invalid := metricsState.invalidTotal
	hardcoded := 0
	if metricsState.lastLoadSource == orchestrator.SourceHardcoded {
		hardcoded = 1
	}
	metricsState.mu.RUnlock()

	readiness.mu.RLock()
	mqttConnected := boolGauge(readiness.mqttConnected)
	postgresConnected := boolGauge(readiness.postgresConnected)
	loaderReady := boolGauge(readiness.loaderReady)
	readiness.mu.RUnlock()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
	}

	labels := fmt.Sprintf(`game="%s",instance="%s",version="%s"`, gameID, hostname, version.Version)

	writeMetric("mazephases_uptime_seconds", "gauge",
		"Number of seconds since the service started", time.Since(startTime).Seconds(), labels)
	writeMetric("mazephases_loader_ready", "gauge",
		"Whether a phase sequence is loaded (1) or not (0)", loaderReady, labels)
	writeMetric("mazephases_loads_total", "counter",
		"Completed phase loads", loads, labels)
	writeMetric("mazephases_fallbacks_total", "counter",
		"Loads that fell back to the hardcoded phases", fallbacks, labels)
	writeMetric("mazephases_navigations_total", "counter",
		"Loads that redirected the game client", navigations, labels)
	writeMetric("mazephases_serving_hardcoded", "gauge",
		"Whether the current sequence is the hardcoded set (1) or not (0)", hardcoded, labels)
	writeMetric("mazephases_phases_served_total", "counter",
		"Phases handed out by /phases/next", served, labels)
	writeMetric("mazephases_phases_invalid_total", "counter",
		"Phases that failed to materialize", invalid, labels)
	writeMetric("mazephases_events_total", "counter",
		"Events emitted since startup", events.TotalCount(), labels)
	writeMetric("mazephases_mqtt_connected", "gauge",
		"Whether the MQTT broker is connected (1) or not (0)", mqttConnected, labels)
	writeMetric("mazephases_postgres_connected", "gauge",
		"Whether PostgreSQL is connected (1) or not (0)", postgresConnected, labels)
	writeMetric("mazephases_ws_clients", "gauge",
		"Active WebSocket event stream connections", events.SubscriberCount(), labels)
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}
