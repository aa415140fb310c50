package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/stallsensor/internal/monitoring"
)

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retain      bool
}

// ErrNotConnected is returned when publishing while the broker link is down.
var ErrNotConnected = errors.New("not connected to MQTT broker")

// MQTTSink publishes each record to TopicPrefix/<event-slug>.
type MQTTSink struct {
	client mqtt.Client
	opts   MQTTOptions
}

// NewMQTTSink connects to the broker. The client reconnects on its own after
// the first successful connection.
func NewMQTTSink(opts MQTTOptions) (*MQTTSink, error) {
	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	co.SetUsername(opts.Username)
	co.SetPassword(opts.Password)
	co.SetCleanSession(true)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetOnConnectHandler(func(mqtt.Client) {
		monitoring.Logf("connected to MQTT broker %s", opts.Broker)
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		monitoring.Warnf("connection to MQTT broker %s lost: %v", opts.Broker, err)
	})

	client := mqtt.NewClient(co)
	token := client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return nil, fmt.Errorf("connect to %s: timeout", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.Broker, err)
	}
	return newMQTTSink(client, opts), nil
}

func newMQTTSink(client mqtt.Client, opts MQTTOptions) *MQTTSink {
	return &MQTTSink{client: client, opts: opts}
}

func (s *MQTTSink) Name() string { return "mqtt" }

// Topic returns the topic a record named event is published to.
func (s *MQTTSink) Topic(event string) string {
	if s.opts.TopicPrefix == "" {
		return Slug(event)
	}
	return s.opts.TopicPrefix + "/" + Slug(event)
}

// Send implements Sink.
func (s *MQTTSink) Send(ctx context.Context, event, payload string) error {
	if !s.client.IsConnected() {
		return ErrNotConnected
	}
	token := s.client.Publish(s.Topic(event), s.opts.QoS, s.opts.Retain, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", event, ctx.Err())
	}
}

// Close disconnects, allowing in-flight messages 250ms to complete.
func (s *MQTTSink) Close() {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}
