package alert

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/proactivecare/internal/pipeline"
	"github.com/Skufu/proactivecare/internal/risk"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }

func (t *fakeToken) Done() <-chan struct{} { return t.done }

func (t *fakeToken) Error() error { return t.err }

type fakePublisher struct {
	topic   string
	qos     byte
	payload []byte
	token   mqtt.Token
}

func (p *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	p.topic = topic
	p.qos = qos
	p.payload = payload.([]byte)
	return p.token
}

func TestNotifyEmergency_PublishesAlert(t *testing.T) {
	pub := &fakePublisher{token: completedToken(nil)}
	n := NewNotifier(pub, "care/emergency")
	n.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	err := n.NotifyEmergency(context.Background(), pipeline.Alert{
		UserID:      "u1",
		RiskScore:   85,
		Message:     risk.EmergencyMessage,
		SymptomTags: []string{"shortness_of_breath"},
	})
	require.NoError(t, err)
	assert.Equal(t, "care/emergency", pub.topic)
	assert.Equal(t, byte(1), pub.qos)

	var got message
	require.NoError(t, json.Unmarshal(pub.payload, &got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "u1", got.Alert.UserID)
	assert.Equal(t, 85, got.Alert.RiskScore)
	assert.True(t, got.SentAt.Equal(n.now()))
}

func TestNotifyEmergency_BrokerError(t *testing.T) {
	pub := &fakePublisher{token: completedToken(errors.New("not connected"))}
	err := NewNotifier(pub, "t").NotifyEmergency(context.Background(), pipeline.Alert{})
	assert.ErrorContains(t, err, "not connected")
}

func TestNotifyEmergency_Timeout(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{done: make(chan struct{})}}
	n := NewNotifier(pub, "t")
	n.timeout = 10 * time.Millisecond

	err := n.NotifyEmergency(context.Background(), pipeline.Alert{})
	assert.ErrorIs(t, err, ErrPublishTimeout)
}

func TestNotifyEmergency_ContextCancelled(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{done: make(chan struct{})}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewNotifier(pub, "t").NotifyEmergency(ctx, pipeline.Alert{})
	assert.ErrorIs(t, err, context.Canceled)
}
