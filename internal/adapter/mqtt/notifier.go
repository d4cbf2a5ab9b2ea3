// Package mqtt publishes pickup reminders to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"

	"github.com/couchcryptid/garbagecal/internal/config"
	"github.com/couchcryptid/garbagecal/internal/notify"
	mqtt "github.com/soypat/natiu-mqtt"
)

const (
	defaultTimeout = 10 * time.Second
	bufSize        = 512
	connectRetries = 50
)

// QoS0, not retained, not dup.
var pubFlags, _ = mqtt.NewPublishFlags(mqtt.QoS0, false, false)

// Notifier opens a short MQTT session per reminder: connect, publish,
// disconnect.
type Notifier struct {
	broker   string
	topic    []byte
	clientID string
	timeout  time.Duration
	dialer   net.Dialer
	logger   *slog.Logger
}

// NewNotifier creates a Notifier for the configured broker and topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	return &Notifier{
		broker:   cfg.MQTTBroker,
		topic:    []byte(cfg.MQTTTopic),
		clientID: cfg.MQTTClientID,
		timeout:  defaultTimeout,
		logger:   logger,
	}
}

// Notify publishes msg as JSON.
func (n *Notifier) Notify(ctx context.Context, msg notify.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("serialize reminder: %w", err)
	}

	conn, err := n.dialer.DialContext(ctx, "tcp", n.broker)
	if err != nil {
		return fmt.Errorf("mqtt dial %s: %w", n.broker, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(n.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}

	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, bufSize)},
		OnPub: func(mqtt.Header, mqtt.VariablesPublish, io.Reader) error {
			return nil
		},
	})

	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(n.sessionID(msg)))
	if err := client.StartConnect(conn, &varconn); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	for i := 0; i < connectRetries && !client.IsConnected(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := client.HandleNext(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
	}
	if !client.IsConnected() {
		return errors.New("mqtt connect: no acknowledgement from broker")
	}

	pubVar := mqtt.VariablesPublish{
		TopicName:        n.topic,
		PacketIdentifier: uint16(rand.Uint32()),
	}
	if err := client.PublishPayload(pubFlags, pubVar, payload); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	client.Disconnect(errors.New("reminder sent")) //nolint:errcheck // session is closed either way

	n.logger.Debug("reminder published", "broker", n.broker, "topic", string(n.topic), "id", msg.ID)
	return nil
}

// sessionID suffixes the client ID so that overlapping sessions do not kick
// each other off the broker.
func (n *Notifier) sessionID(msg notify.Message) string {
	if len(msg.ID) >= 8 {
		return n.clientID + "-" + msg.ID[:8]
	}
	return fmt.Sprintf("%s-%04x", n.clientID, uint16(rand.Uint32()))
}
