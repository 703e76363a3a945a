package mqtt

import (
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const opTimeout = 10 * time.Second

// Conn is the part of an MQTT connection the listener and navigator use.
type Conn interface {
	Subscribe(topic string, handler paho.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte) error
}

// Client wraps the Paho MQTT client.
type Client struct {
	client paho.Client
	broker string
	logger *zap.Logger
	mu     sync.Mutex
}

// BrokerURL returns brokerURL, overridden by MQTT_URL when set.
func BrokerURL(brokerURL string) string {
	if url := os.Getenv("MQTT_URL"); url != "" {
		return url
	}
	if brokerURL == "" {
		return "tcp://localhost:1883"
	}
	return brokerURL
}

// NewClient creates a client but does not connect. An empty clientID gets a
// random one; password may be empty.
func NewClient(brokerURL, clientID, password string, logger *zap.Logger) *Client {
	if clientID == "" {
		clientID = "mazephases-" + uuid.NewString()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	broker := BrokerURL(brokerURL)

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second)
	if password != "" {
		opts.SetUsername("mazephases").SetPassword(password)
	}

	return &Client{
		client: paho.NewClient(opts),
		broker: broker,
		logger: logger,
	}
}

// Connect attempts to connect to the broker without blocking indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(opTimeout) {
		return &TimeoutError{Op: "connect", Topic: c.broker}
	}
	return token.Error()
}

// Subscribe subscribes to topic at QoS 1.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Subscribe(topic, 1, handler)
	if !token.WaitTimeout(opTimeout) {
		return &TimeoutError{Op: "subscribe", Topic: topic}
	}
	return token.Error()
}

// Unsubscribe drops a subscription.
func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(opTimeout) {
		return &TimeoutError{Op: "unsubscribe", Topic: topic}
	}
	return token.Error()
}

// Publish sends payload to topic at QoS 1 and waits for the broker.
func (c *Client) Publish(topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(opTimeout) {
		return &TimeoutError{Op: "publish", Topic: topic}
	}
	return token.Error()
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client.Disconnect(1000)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// TimeoutError is returned when the broker does not acknowledge in time.
type TimeoutError struct {
	Op    string
	Topic string
}

func (e *TimeoutError) Error() string {
	return "mqtt " + e.Op + " timeout: " + e.Topic
}

// StartWithRetry connects and subscribes, logging failures instead of
// returning them. Returns true if connected.
func (c *Client) StartWithRetry(topic string, handler paho.MessageHandler) bool {
	if err := c.Connect(); err != nil {
		c.logger.Warn("mqtt connect failed", zap.String("broker", c.broker), zap.Error(err))
		return false
	}

	if err := c.Subscribe(topic, handler); err != nil {
		c.logger.Warn("mqtt subscribe failed", zap.String("topic", topic), zap.Error(err))
		return false
	}

	c.logger.Info("mqtt connected", zap.String("broker", c.broker), zap.String("topic", topic))
	return true
}
