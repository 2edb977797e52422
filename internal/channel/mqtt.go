package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/crypdick/pynchy-gate/internal/logging"
)

const (
	topicPrefix  = "pynchy/workspaces/"
	replyPattern = topicPrefix + "+/replies"

	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// ErrNotConnected is returned when publishing before Start.
var ErrNotConnected = errors.New("mqtt: not connected")

// PromptTopic is the topic approval prompts for a workspace are published on.
func PromptTopic(workspaceID string) string {
	return topicPrefix + workspaceID + "/approvals"
}

// ReplyTopic is the topic humans publish replies for a workspace on.
func ReplyTopic(workspaceID string) string {
	return topicPrefix + workspaceID + "/replies"
}

// MQTTConfig defines the broker connection.
type MQTTConfig struct {
	Broker   string `yaml:"broker"    json:"broker" validate:"required,hostname|ip"`
	Port     int    `yaml:"port"      json:"port"   validate:"gte=0,lte=65535"`
	Username string `yaml:"username"  json:"username"`
	Password string `yaml:"password"  json:"password"`
	ClientID string `yaml:"client_id" json:"client_id"`
}

// MQTTChannel publishes prompts to per-workspace topics and listens for
// replies on the matching reply topics.
type MQTTChannel struct {
	cfg     MQTTConfig
	log     *logging.Entry
	factory func(opts *mqtt.ClientOptions) MQTTClient

	mu      sync.Mutex
	client  MQTTClient
	onReply ReplyHandler
}

// NewMQTTChannel creates an MQTTChannel backed by the paho client.
func NewMQTTChannel(cfg MQTTConfig, log *logging.Entry) *MQTTChannel {
	return NewMQTTChannelWithClient(cfg, log, func(opts *mqtt.ClientOptions) MQTTClient {
		return &pahoClient{client: mqtt.NewClient(opts)}
	})
}

// NewMQTTChannelWithClient creates an MQTTChannel with a custom client factory.
func NewMQTTChannelWithClient(cfg MQTTConfig, log *logging.Entry, factory func(*mqtt.ClientOptions) MQTTClient) *MQTTChannel {
	if cfg.Port == 0 {
		cfg.Port = 1883
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "pynchy-gate"
	}
	return &MQTTChannel{cfg: cfg, log: logging.OrDiscard(log), factory: factory}
}

// Name implements HumanChannel.
func (m *MQTTChannel) Name() string { return "mqtt" }

// Start connects to the broker. Replies are passed to onReply, which may be nil
// when the channel only sends.
func (m *MQTTChannel) Start(ctx context.Context, onReply ReplyHandler) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", m.cfg.Broker, m.cfg.Port))
	opts.SetClientID(m.cfg.ClientID)
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}
	opts.SetKeepAlive(30 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		if err := m.subscribe(); err != nil {
			m.log.WithError(err).Error("resubscribe failed")
		}
	})

	client := m.factory(opts)

	m.mu.Lock()
	m.client = client
	m.onReply = onReply
	m.mu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	// paho fires the connect handler itself; mocks and slow brokers may not.
	if err := m.subscribe(); err != nil {
		return err
	}

	m.log.WithField("broker", m.cfg.Broker).Info("mqtt channel connected")
	return nil
}

// Stop disconnects from the broker.
func (m *MQTTChannel) Stop() error {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
	return nil
}

// SendPrompt implements HumanChannel.
func (m *MQTTChannel) SendPrompt(ctx context.Context, workspaceID, text string) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(newPromptEvent(workspaceID, text))
	if err != nil {
		return fmt.Errorf("marshal prompt: %w", err)
	}

	token := client.Publish(PromptTopic(workspaceID), 1, false, payload)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	case <-time.After(publishTimeout):
		return fmt.Errorf("mqtt publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}

func (m *MQTTChannel) subscribe() error {
	m.mu.Lock()
	client := m.client
	hasHandler := m.onReply != nil
	m.mu.Unlock()
	if client == nil || !hasHandler {
		return nil
	}
	token := client.Subscribe(replyPattern, 1, m.handleReply)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe: %w", err)
	}
	return nil
}

// replyMessage is the JSON reply form. Plain-text payloads are accepted too.
type replyMessage struct {
	Text string `json:"text"`
}

func (m *MQTTChannel) handleReply(_ mqtt.Client, msg mqtt.Message) {
	workspaceID, ok := workspaceFromTopic(msg.Topic())
	if !ok {
		m.log.WithField("topic", msg.Topic()).Warn("ignoring reply on unexpected topic")
		return
	}

	text := strings.TrimSpace(string(msg.Payload()))
	var rm replyMessage
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal(msg.Payload(), &rm); err != nil {
			m.log.WithError(err).Warn("malformed reply payload")
			return
		}
		text = rm.Text
	}

	m.mu.Lock()
	handler := m.onReply
	m.mu.Unlock()
	if handler != nil {
		handler(workspaceID, text)
	}
}

func workspaceFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, topicPrefix)
	if !ok {
		return "", false
	}
	ws, ok := strings.CutSuffix(rest, "/replies")
	if !ok || ws == "" || strings.Contains(ws, "/") {
		return "", false
	}
	return ws, true
}
