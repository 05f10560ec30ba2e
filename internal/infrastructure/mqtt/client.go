package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"iotexplorer/internal/config"
	"iotexplorer/internal/domain"
	"iotexplorer/internal/service"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
)

// broker is the subset of pahomqtt.Client the publisher uses
type broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Publisher mirrors registry events to an MQTT broker. Device snapshots and
// availability are retained so late subscribers see current state.
type Publisher struct {
	client   broker
	topics   Topics
	qos      byte
	clientID string
	logger   zerolog.Logger
}

// Connect dials the broker described by cfg and announces the bridge online
func Connect(cfg config.MQTTConfig, logger zerolog.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	topics := Topics{Prefix: cfg.TopicPrefix}
	opts := buildClientOptions(cfg)
	opts.SetWill(topics.Status(), statusPayload(cfg.ClientID, "offline", "unexpected_disconnect"), 1, true)

	p := &Publisher{
		topics:   topics,
		qos:      byte(cfg.QoS),
		clientID: cfg.ClientID,
		logger:   logger,
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		logger.Info().Str("broker", cfg.Host).Msg("MQTT connected")
		p.announce("online", "")
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	client := pahomqtt.NewClient(opts)
	p.client = client

	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return p, nil
}

// newPublisher wraps an existing broker connection
func newPublisher(client broker, topics Topics, qos byte, clientID string, logger zerolog.Logger) *Publisher {
	return &Publisher{client: client, topics: topics, qos: qos, clientID: clientID, logger: logger}
}

func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	return opts
}

func statusPayload(clientID, status, reason string) string {
	payload := map[string]string{
		"status":    status,
		"client_id": clientID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func (p *Publisher) announce(status, reason string) {
	if p.client == nil {
		return
	}
	token := p.client.Publish(p.topics.Status(), p.qos, true, statusPayload(p.clientID, status, reason))
	token.WaitTimeout(defaultPublishTimeout)
}

// Publish sends payload to topic and waits for the broker acknowledgement
func (p *Publisher) Publish(topic string, payload []byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}

	token := p.client.Publish(topic, p.qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// HandleEvent publishes one bus event. Device events also refresh the
// device's retained state and availability topics.
func (p *Publisher) HandleEvent(event service.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: encoding event: %w", ErrPublishFailed, err)
	}
	if err := p.Publish(p.topics.Event(string(event.Type)), data, false); err != nil {
		return err
	}

	snapshot, ok := event.Payload.(domain.DeviceSnapshot)
	if !ok {
		return nil
	}

	if event.Type == service.EventDeviceRemoved {
		// An empty retained message clears the topic
		if err := p.Publish(p.topics.DeviceState(snapshot.MAC), nil, true); err != nil {
			return err
		}
		return p.Publish(p.topics.DeviceAvailability(snapshot.MAC), nil, true)
	}

	state, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("%w: encoding device: %w", ErrPublishFailed, err)
	}
	if err := p.Publish(p.topics.DeviceState(snapshot.MAC), state, true); err != nil {
		return err
	}

	availability := "offline"
	if snapshot.Available {
		availability = "online"
	}
	return p.Publish(p.topics.DeviceAvailability(snapshot.MAC), []byte(availability), true)
}

// Run publishes events until ctx is done or the channel closes
func (p *Publisher) Run(ctx context.Context, events <-chan service.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := p.HandleEvent(event); err != nil {
				p.logger.Warn().Err(err).Str("event", string(event.Type)).Msg("Failed to publish event")
			}
		}
	}
}

// Close announces a graceful shutdown and disconnects
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	if p.client.IsConnected() {
		p.announce("offline", "shutdown")
	}
	p.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}
