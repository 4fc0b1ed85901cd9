// Package alert publishes emergency risk results to an MQTT topic.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/Skufu/proactivecare/internal/pipeline"
)

var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Publisher is the part of mqtt.Client the notifier needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Connect dials the broker with auto-reconnect enabled.
func Connect(cfg Config) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}
	return client, nil
}

type message struct {
	ID     string         `json:"id"`
	SentAt time.Time      `json:"sent_at"`
	Alert  pipeline.Alert `json:"alert"`
}

// Notifier implements pipeline.Notifier over MQTT with QoS 1.
type Notifier struct {
	pub     Publisher
	topic   string
	timeout time.Duration
	now     func() time.Time
}

func NewNotifier(pub Publisher, topic string) *Notifier {
	return &Notifier{pub: pub, topic: topic, timeout: 3 * time.Second, now: time.Now}
}

func (n *Notifier) NotifyEmergency(ctx context.Context, a pipeline.Alert) error {
	payload, err := json.Marshal(message{ID: uuid.NewString(), SentAt: n.now().UTC(), Alert: a})
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	token := n.pub.Publish(n.topic, 1, false, payload)
	timer := time.NewTimer(n.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: topic %s", ErrPublishTimeout, n.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to topic %s: %w", n.topic, err)
	}
	return nil
}
