package mqtt

import (
	"sync"
	"time"
)

// GameClient is a registered game page.
type GameClient struct {
	ID           string
	SessionID    string
	UserAgent    string
	CommandTopic string
	EventTopic   string
	HeartbeatSec int
	RegisteredAt time.Time
	LastSeen     time.Time
}

// ClientRegistry tracks the game clients that can be navigated.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*GameClient
	now     func() time.Time
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*GameClient),
		now:     time.Now,
	}
}

// Register adds or replaces a client. It reports whether the client was
// already known.
func (r *ClientRegistry) Register(c *GameClient) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cpy := *c
	if cpy.RegisteredAt.IsZero() {
		cpy.RegisteredAt = now
	}
	cpy.LastSeen = now

	_, existed := r.clients[c.ID]
	r.clients[c.ID] = &cpy
	return existed
}

// RegisterFromPayload registers the client described by payload.
func (r *ClientRegistry) RegisterFromPayload(p *RegistrationPayload) bool {
	return r.Register(&GameClient{
		ID:           p.Client.ID,
		SessionID:    p.Client.SessionID,
		UserAgent:    p.Client.UserAgent,
		CommandTopic: p.Topics.Command,
		EventTopic:   p.Topics.Events,
		HeartbeatSec: p.Client.HeartbeatSec,
	})
}

// Unregister removes a client and returns it, or nil if it was unknown.
func (r *ClientRegistry) Unregister(id string) *GameClient {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return nil
	}
	delete(r.clients, id)
	return c
}

// Touch records a heartbeat. Unknown clients are ignored.
func (r *ClientRegistry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if ok {
		c.LastSeen = r.now()
	}
	return ok
}

// Get returns a copy of a client, or nil if not found.
func (r *ClientRegistry) Get(id string) *GameClient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.clients[id]; ok {
		cpy := *c
		return &cpy
	}
	return nil
}

// Active returns the most recently registered client, or nil.
func (r *ClientRegistry) Active() *GameClient {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *GameClient
	for _, c := range r.clients {
		if best == nil || c.RegisteredAt.After(best.RegisteredAt) ||
			(c.RegisteredAt.Equal(best.RegisteredAt) && c.ID > best.ID) {
			best = c
		}
	}
	if best == nil {
		return nil
	}
	cpy := *best
	return &cpy
}

// All returns copies of all registered clients.
func (r *ClientRegistry) All() []*GameClient {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*GameClient, 0, len(r.clients))
	for _, c := range r.clients {
		cpy := *c
		result = append(result, &cpy)
	}
	return result
}

// Len returns the number of registered clients.
func (r *ClientRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Clear removes all clients.
func (r *ClientRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = make(map[string]*GameClient)
}
