package realtime

import (
	"context"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

// pendingToken never completes, like a QoS 1 publish during a reconnect.
type pendingToken struct {
	mqtt.Token
	done chan struct{}
}

func (t pendingToken) Done() <-chan struct{} { return t.done }
func (t pendingToken) Error() error { return nil }

type reconnectingClient struct {
	mqtt.Client
	topics []string
}

func (c *reconnectingClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topics = append(c.topics, topic)
	return pendingToken{done: make(chan struct{})}
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "family-booking/requests/r1", Topic("family-booking", "r1"))
	assert.Equal(t, "fb/requests/r1", Topic("fb/", "r1"))
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.Publish(context.Background(), Change{RequestID: "r1"}))
}

func TestPublishGivesUpWithoutAcknowledgement(t *testing.T) {
	client := &reconnectingClient{}
	m := &MQTT{client: client, prefix: "fb", log: logrus.NewEntry(logrus.New()), publishTimeout: 20 * time.Millisecond}

	start := time.Now()
	err := m.Publish(context.Background(), Change{RequestID: "r1", NewStatus: "cancelled"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []string{"fb/requests/r1"}, client.topics)
}
