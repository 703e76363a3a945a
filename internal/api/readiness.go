package api

import (
	"encoding/json"
	"net/http"
	"sync"
)

var readiness = &readinessState{}

type readinessState struct {
	mu                sync.RWMutex
	loaderReady       bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}

// SetLoaderReady marks whether a phase sequence has been loaded.
func SetLoaderReady(ready bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.loaderReady = ready
}

// SetMQTTStatus records the broker connection. An optional dependency does
// not affect readiness.
func SetMQTTStatus(connected, optional bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.mqttConnected = connected
	readiness.mqttOptional = optional
}

// SetPostgresStatus records the event store connection.
func SetPostgresStatus(connected, optional bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.postgresConnected = connected
	readiness.postgresOptional = optional
}

type CheckResult struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type ReadinessResponse struct {
	Ready  bool                   `json:"ready"`
	Checks map[string]CheckResult `json:"checks"`
}

func dependencyCheck(connected, optional bool) (CheckResult, bool) {
	switch {
	case connected:
		return CheckResult{Status: "ok"}, true
	case optional:
		return CheckResult{Status: "disabled", Detail: "optional"}, true
	default:
		return CheckResult{Status: "error", Detail: "not connected"}, false
	}
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	readiness.mu.RLock()
	loaderReady := readiness.loaderReady
	mqttConnected, mqttOptional := readiness.mqttConnected, readiness.mqttOptional
	pgConnected, pgOptional := readiness.postgresConnected, readiness.postgresOptional
	readiness.mu.RUnlock()

	resp := ReadinessResponse{Ready: true, Checks: make(map[string]CheckResult)}

	if loaderReady {
		resp.Checks["loader"] = CheckResult{Status: "ok"}
	} else {
		resp.Checks["loader"] = CheckResult{Status: "error", Detail: "phases not loaded"}
		resp.Ready = false
	}

	var ok bool
	if resp.Checks["mqtt"], ok = dependencyCheck(mqttConnected, mqttOptional); !ok {
		resp.Ready = false
	}
	if resp.Checks["postgres"], ok = dependencyCheck(pgConnected, pgOptional); !ok {
		resp.Ready = false
	}

	w.Header().Set("Content-Type", "application/json")
	if !resp.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
