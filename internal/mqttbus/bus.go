// Package mqttbus carries live device readings and dispenser commands over MQTT.
package mqttbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"snackloader/internal/livedata"
	"snackloader/internal/model"
)

const (
	qosAtLeastOnce = 1
	opTimeout      = 10 * time.Second
	quiesceMs      = 250
)

// Options configures the broker connection.
type Options struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// client is the subset of mqtt.Client used by the bus, so tests can run
// without a broker.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// Bus maps feeder paths onto topics under a common prefix.
type Bus struct {
	client client
	prefix string
	log    *slog.Logger
}

// Connect dials the broker and returns a ready Bus. The client reconnects
// on its own after a lost connection and restores its subscriptions.
func Connect(ctx context.Context, o Options, log *slog.Logger) (*Bus, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	if o.Username != "" {
		opts.SetUsername(o.Username)
	}
	if o.Password != "" {
		opts.SetPassword(o.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(false)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Info("mqtt connected", "broker", o.Broker, "client_id", o.ClientID)
	})

	c := mqtt.NewClient(opts)
	if err := wait(ctx, c.Connect()); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", o.Broker, err)
	}
	return newBus(c, o.TopicPrefix, log), nil
}

func newBus(c client, prefix string, log *slog.Logger) *Bus {
	return &Bus{client: c, prefix: strings.Trim(prefix, "/"), log: log}
}

// Topic returns the broker topic of a feeder path.
func (b *Bus) Topic(path string) string {
	if b.prefix == "" {
		return path
	}
	return b.prefix + "/" + path
}

// Subscribe delivers every payload published on path to handler.
func (b *Bus) Subscribe(path string, handler func(payload []byte)) (func() error, error) {
	topic := b.Topic(path)
	token := b.client.Subscribe(topic, qosAtLeastOnce, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	if err := wait(context.Background(), token); err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	b.log.Debug("mqtt subscribed", "topic", topic)

	return func() error {
		if err := wait(context.Background(), b.client.Unsubscribe(topic)); err != nil {
			return fmt.Errorf("unsubscribe from %s: %w", topic, err)
		}
		return nil
	}, nil
}

// Dispatch publishes the full command snapshot to pet's dispenser. The
// message is retained so a dispenser that reconnects sees the latest command.
func (b *Bus) Dispatch(ctx context.Context, pet model.Pet, cmd model.DispatchCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	topic := b.Topic(livedata.DispenserPath(pet))
	if err := wait(ctx, b.client.Publish(topic, qosAtLeastOnce, true, payload)); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	b.log.Debug("dispenser command published", "topic", topic, "command_id", cmd.CommandID, "amount", cmd.AmountGrams)
	return nil
}

// Close disconnects from the broker.
func (b *Bus) Close() error {
	b.client.Disconnect(quiesceMs)
	return nil
}

// wait blocks until the token completes, ctx ends or opTimeout passes.
func wait(ctx context.Context, t mqtt.Token) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
