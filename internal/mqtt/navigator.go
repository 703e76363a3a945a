package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoClient is returned when no game client is registered to navigate.
var ErrNoClient = errors.New("no game client registered")

// NavigateCommand is published to a client's command topic.
type NavigateCommand struct {
	URL string `json:"url"`
}

// Navigator redirects the active game client by publishing a
// NavigateCommand to its command topic.
type Navigator struct {
	conn     Conn
	registry *ClientRegistry
}

// NewNavigator creates a navigator.
func NewNavigator(conn Conn, registry *ClientRegistry) *Navigator {
	return &Navigator{conn: conn, registry: registry}
}

// Navigate sends the active client to url.
func (n *Navigator) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c := n.registry.Active()
	if c == nil {
		return ErrNoClient
	}

	payload, err := json.Marshal(NavigateCommand{URL: url})
	if err != nil {
		return err
	}
	if err := n.conn.Publish(c.CommandTopic, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", c.CommandTopic, err)
	}
	return nil
}
