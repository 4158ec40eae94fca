// Package mqtt ingests telemetry from a message broker. Payloads use
// the same array-of-Message shape as the HTTP endpoint, but the trust
// model differs: the broker connection is authenticated once, and the
// per-message identity is taken from the message's own metadata rather
// than a verified credential. Devices on the bus are trusted to
// declare who they are.
package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tinyland-inc/eden/pkg/auth"
	"github.com/tinyland-inc/eden/pkg/bus"
	"github.com/tinyland-inc/eden/pkg/telemetry"
)

// RoleNone is the role recorded for bus messages that do not declare
// one.
const RoleNone = "None"

// Config for the broker subscription.
type Config struct {
	BrokerURL      string
	Username       string
	Password       string
	VerifyCA       bool
	Topics         []string
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
}

// Subscriber receives broker payloads and feeds them into the ingest
// bus. One paho callback goroutine produces; the bus provides the
// synchronization.
type Subscriber struct {
	cfg     Config
	bus     *bus.IngestBus
	client  pahomqtt.Client
	logger  zerolog.Logger
	running atomic.Bool
}

func NewSubscriber(cfg Config, ingest *bus.IngestBus, logger zerolog.Logger) *Subscriber {
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 5 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	return &Subscriber{
		cfg:    cfg,
		bus:    ingest,
		logger: logger.With().Str("component", "mqtt").Logger(),
	}
}

// Start connects to the broker and subscribes to the configured
// topics. Reconnects are handled by the client; every (re)connect
// re-subscribes.
func (s *Subscriber) Start(ctx context.Context) error {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(s.cfg.BrokerURL)
	opts.SetClientID("eden-" + uuid.NewString()[:8])
	opts.SetUsername(s.cfg.Username)
	opts.SetPassword(s.cfg.Password)
	opts.SetKeepAlive(s.cfg.KeepAlive)
	opts.SetConnectTimeout(s.cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)

	if strings.HasPrefix(s.cfg.BrokerURL, "tls://") || strings.HasPrefix(s.cfg.BrokerURL, "ssl://") {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: !s.cfg.VerifyCA})
	}

	opts.SetOnConnectHandler(func(client pahomqtt.Client) {
		s.logger.Info().Str("broker", s.cfg.BrokerURL).Strs("topics", s.cfg.Topics).Msg("connected, subscribing")
		for _, topic := range s.cfg.Topics {
			if token := client.Subscribe(topic, s.cfg.QoS, s.onMessage); token.Wait() && token.Error() != nil {
				s.logger.Error().Err(token.Error()).Str("topic", topic).Msg("subscribe failed")
			}
		}
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.logger.Warn().Err(err).Msg("broker connection lost")
	})

	s.client = pahomqtt.NewClient(opts)
	if token := s.client.Connect(); token.WaitTimeout(s.cfg.ConnectTimeout) && token.Error() != nil {
		return fmt.Errorf("connecting to broker: %w", token.Error())
	}
	s.running.Store(true)
	return nil
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop(context.Context) error {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	s.running.Store(false)
	return nil
}

func (s *Subscriber) IsRunning() bool {
	return s.running.Load()
}

func (s *Subscriber) onMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	// The handler runs on the client's callback goroutine; copy the
	// payload before it is reused.
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())
	s.handlePayload(context.Background(), payload)
}

// handlePayload parses one broker payload and publishes an envelope
// per message. A payload that does not parse is discarded whole;
// nothing is enqueued from it.
func (s *Subscriber) handlePayload(ctx context.Context, payload []byte) {
	messages, err := telemetry.ParseBatch(payload)
	if err != nil {
		s.logger.Info().Err(err).Int("bytes", len(payload)).Msg("discarding unparseable payload")
		return
	}
	s.logger.Debug().Int("messages", len(messages)).Msg("payload received")

	for _, msg := range messages {
		role := msg.Meta.Role
		if role == "" {
			role = RoleNone
		}
		agent := &auth.Agent{Name: msg.Meta.Name, Role: role}
		if err := s.bus.Publish(ctx, bus.Envelope{Agent: agent, Msg: msg}); err != nil {
			s.logger.Warn().Err(err).Msg("dropping message, bus unavailable")
			return
		}
	}
}
