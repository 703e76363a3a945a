package mqtt

import (
	"sync"
	"time"

	"github.com/paulaanasilva/mazephases/internal/events"
)

// Monitor drops game clients whose heartbeats stopped.
type Monitor struct {
	registry  *ClientRegistry
	tolerance float64 // multiplier for the heartbeat interval
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewMonitor creates a monitor over registry. tolerance is how many
// heartbeat intervals may pass before a client is considered gone.
func NewMonitor(registry *ClientRegistry, tolerance float64) *Monitor {
	if tolerance <= 1.0 {
		tolerance = 2.0
	}
	return &Monitor{
		registry:  registry,
		tolerance: tolerance,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (m *Monitor) Start(interval time.Duration) {
	m.wg.Add(1)
	go m.loop(interval)
}

// Stop stops the sweep loop. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Monitor) loop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep unregisters stale clients and returns their ids. Clients that
// registered without a heartbeat interval never expire.
func (m *Monitor) Sweep() []string {
	stale := m.registry.expire(m.tolerance)

	ids := make([]string, 0, len(stale))
	for _, c := range stale {
		ids = append(ids, c.ID)
		events.Emit("warning", "client.unregistered", "heartbeat timeout", map[string]interface{}{
			"client_id":  c.ID,
			"session_id": c.SessionID,
			"last_seen":  c.LastSeen.Format(time.RFC3339),
			"reason":     "timeout",
		})
	}
	return ids
}

func (r *ClientRegistry) expire(tolerance float64) []*GameClient {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var stale []*GameClient
	for id, c := range r.clients {
		if c.HeartbeatSec <= 0 {
			continue
		}
		timeout := time.Duration(float64(c.HeartbeatSec)*tolerance) * time.Second
		if now.Sub(c.LastSeen) > timeout {
			stale = append(stale, c)
			delete(r.clients, id)
		}
	}
	return stale
}
