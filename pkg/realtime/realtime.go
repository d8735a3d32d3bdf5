package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Change is published on every committed status transition. Consumers treat
// it as a hint and re-fetch the request.
type Change struct {
	RequestID string    `json:"request_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	At        time.Time `json:"at"`
}

// Publisher emits change events.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Change) error { return nil }

// Topic returns the topic for one request.
func Topic(prefix, requestID string) string {
	return strings.TrimRight(prefix, "/") + "/requests/" + requestID
}

// MQTT publishes and subscribes to change events on a broker.
type MQTT struct {
	client mqtt.Client
	prefix string
	log    *logrus.Entry
	// publishTimeout bounds the wait for the broker's acknowledgement.
	publishTimeout time.Duration
}

const defaultPublishTimeout = 2 * time.Second

// Dial connects to brokerURL.
func Dial(brokerURL, clientID, prefix string, log *logrus.Entry) (*MQTT, error) {
	log = log.WithField("module", "realtime")
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("mqtt connection lost")
		})

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("realtime.Dial: connect to %s timed out", brokerURL)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("realtime.Dial: %w", err)
	}
	log.WithField("broker", brokerURL).Info("mqtt connected")
	return &MQTT{client: client, prefix: prefix, log: log, publishTimeout: defaultPublishTimeout}, nil
}

func (m *MQTT) Publish(ctx context.Context, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("realtime.Publish: %w", err)
	}
	tok := m.client.Publish(Topic(m.prefix, c.RequestID), 1, false, payload)
	timeout := m.publishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-timer.C:
		return fmt.Errorf("realtime.Publish: no acknowledgement for %s within %s", c.RequestID, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe calls fn for every change on any request until ctx is done.
func (m *MQTT) Subscribe(ctx context.Context, fn func(Change)) error {
	topic := strings.TrimRight(m.prefix, "/") + "/requests/+"
	tok := m.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		var c Change
		if err := json.Unmarshal(msg.Payload(), &c); err != nil {
			m.log.WithError(err).WithField("topic", msg.Topic()).Warn("malformed change event")
			return
		}
		fn(c)
	})
	if !tok.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("realtime.Subscribe: subscribe timed out")
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("realtime.Subscribe: %w", err)
	}

	<-ctx.Done()
	m.client.Unsubscribe(topic).WaitTimeout(2 * time.Second)
	return nil
}

func (m *MQTT) Close() {
	m.client.Disconnect(250)
}
