package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultRegisterTopic is where game clients announce themselves.
const DefaultRegisterTopic = "mazephases/clients/register"

// RegistrationPayload is a v1 game client registration message.
type RegistrationPayload struct {
	Version int          `json:"version"`
	Client  ClientInfo   `json:"client"`
	Topics  ClientTopics `json:"topics"`
	// Leaving marks a client that is going away on purpose.
	Leaving bool `json:"leaving,omitempty"`
}

// ClientInfo describes the game page that registered.
type ClientInfo struct {
	ID           string `json:"id"`
	SessionID    string `json:"session_id"`
	UserAgent    string `json:"user_agent"`
	HeartbeatSec int    `json:"heartbeat_sec"`
}

// ClientTopics are the client's own topics. Command is where the client
// listens; Events is where it sends heartbeats.
type ClientTopics struct {
	Command string `json:"command"`
	Events  string `json:"events"`
}

// ParseRegistration decodes and checks a registration payload.
func ParseRegistration(data []byte) (*RegistrationPayload, error) {
	var payload RegistrationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid registration JSON: %w", err)
	}

	if payload.Version != 1 {
		return nil, fmt.Errorf("unsupported registration version: %d", payload.Version)
	}
	if payload.Client.ID == "" {
		return nil, fmt.Errorf("client.id is required")
	}
	if payload.Leaving {
		return &payload, nil
	}
	if payload.Topics.Command == "" {
		return nil, fmt.Errorf("client %s: topics.command is required", payload.Client.ID)
	}
	if strings.ContainsAny(payload.Topics.Command, "#+") {
		return nil, fmt.Errorf("client %s: command topic must not contain wildcards", payload.Client.ID)
	}
	if payload.Client.HeartbeatSec < 0 {
		return nil, fmt.Errorf("client %s: negative heartbeat_sec", payload.Client.ID)
	}

	return &payload, nil
}
