package mqtt

import (
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/paulaanasilva/mazephases/internal/events"
)

// Listener handles game client registrations and heartbeats.
// Event topic subscriptions are idempotent across re-registrations.
type Listener struct {
	conn     Conn
	registry *ClientRegistry
	topic    string
	logger   *zap.Logger

	mu         sync.Mutex
	subscribed map[string]string // event topic -> client id
}

// NewListener creates a listener for the given register topic.
func NewListener(conn Conn, registry *ClientRegistry, topic string, logger *zap.Logger) *Listener {
	if topic == "" {
		topic = DefaultRegisterTopic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		conn:       conn,
		registry:   registry,
		topic:      topic,
		logger:     logger,
		subscribed: make(map[string]string),
	}
}

// Topic returns the register topic.
func (l *Listener) Topic() string {
	return l.topic
}

// Start subscribes to the register topic.
func (l *Listener) Start() error {
	return l.conn.Subscribe(l.topic, l.OnRegistration)
}

// OnRegistration is the paho handler for the register topic.
func (l *Listener) OnRegistration(_ paho.Client, msg paho.Message) {
	l.Handle(msg.Payload())
}

// Handle processes one registration payload.
func (l *Listener) Handle(data []byte) {
	payload, err := ParseRegistration(data)
	if err != nil {
		l.logger.Warn("rejected client registration", zap.Error(err))
		events.Emit("error", "client.error", "registration rejected", map[string]interface{}{
			"topic": l.topic,
			"error": err.Error(),
		})
		return
	}

	if payload.Leaving {
		l.unregister(payload.Client.ID)
		return
	}

	reregistered := l.registry.RegisterFromPayload(payload)
	if err := l.subscribeEvents(payload.Client.ID, payload.Topics.Events); err != nil {
		l.logger.Warn("failed to subscribe to client events",
			zap.String("client_id", payload.Client.ID),
			zap.String("topic", payload.Topics.Events),
			zap.Error(err))
		events.Emit("error", "client.error", "failed to subscribe to client events", map[string]interface{}{
			"client_id": payload.Client.ID,
			"topic":     payload.Topics.Events,
			"error":     err.Error(),
		})
	}

	events.Emit("info", "client.registered", "", map[string]interface{}{
		"client_id":     payload.Client.ID,
		"session_id":    payload.Client.SessionID,
		"command_topic": payload.Topics.Command,
		"reregistered":  reregistered,
	})
	l.logger.Info("game client registered",
		zap.String("client_id", payload.Client.ID),
		zap.String("command_topic", payload.Topics.Command),
		zap.Bool("reregistered", reregistered))
}

func (l *Listener) unregister(id string) {
	c := l.registry.Unregister(id)
	if c == nil {
		return
	}
	if c.EventTopic != "" {
		l.mu.Lock()
		delete(l.subscribed, c.EventTopic)
		l.mu.Unlock()
		if err := l.conn.Unsubscribe(c.EventTopic); err != nil {
			l.logger.Debug("unsubscribe failed", zap.String("topic", c.EventTopic), zap.Error(err))
		}
	}
	events.Emit("info", "client.unregistered", "", map[string]interface{}{
		"client_id":  c.ID,
		"session_id": c.SessionID,
		"reason":     "leaving",
	})
}

func (l *Listener) subscribeEvents(clientID, topic string) error {
	if topic == "" {
		return nil
	}

	l.mu.Lock()
	if l.subscribed[topic] == clientID {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	handler := func(_ paho.Client, _ paho.Message) {
		l.registry.Touch(clientID)
	}
	if err := l.conn.Subscribe(topic, handler); err != nil {
		return err
	}

	l.mu.Lock()
	l.subscribed[topic] = clientID
	l.mu.Unlock()
	return nil
}

// IsSubscribed returns true if the event topic is subscribed.
func (l *Listener) IsSubscribed(topic string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.subscribed[topic]
	return ok
}

// SubscribedTopics returns all subscribed event topics.
func (l *Listener) SubscribedTopics() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	topics := make([]string, 0, len(l.subscribed))
	for topic := range l.subscribed {
		topics = append(topics, topic)
	}
	return topics
}

// Resubscribe restores all subscriptions after a reconnect.
func (l *Listener) Resubscribe() error {
	l.mu.Lock()
	l.subscribed = make(map[string]string)
	l.mu.Unlock()

	if err := l.Start(); err != nil {
		return err
	}
	for _, c := range l.registry.All() {
		if err := l.subscribeEvents(c.ID, c.EventTopic); err != nil {
			events.Emit("error", "client.error", "failed to resubscribe to client events", map[string]interface{}{
				"client_id": c.ID,
				"topic":     c.EventTopic,
				"error":     err.Error(),
			})
		}
	}
	return nil
}
