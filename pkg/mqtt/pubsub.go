package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/0x6flab/namegenerator"
	pkgerrors "github.com/absmach/sparkpipe/pkg/errors"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connTimeout    = 10
	reconnTimeout  = 1
	disconnTimeout = 250
)

var (
	errPublishTimeout     = errors.New("failed to publish due to timeout reached")
	errSubscribeTimeout   = errors.New("failed to subscribe due to timeout reached")
	errUnsubscribeTimeout = errors.New("failed to unsubscribe due to timeout reached")
	errConnectTimeout     = errors.New("timeout reached while connecting to MQTT broker")
	errEmptyTopic         = errors.New("empty topic")
)

// Handler receives the raw payload of every message delivered on a subscription.
type Handler func(topic string, payload []byte) error

type PubSub interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Unsubscribe(ctx context.Context, topic string) error
	Disconnect(ctx context.Context) error
}

type Config struct {
	URL      string        `env:"URL"       envDefault:"tcp://localhost:1883"`
	ClientID string        `env:"CLIENT_ID"`
	Username string        `env:"USERNAME"`
	Password string        `env:"PASSWORD"`
	QoS      byte          `env:"QOS"       envDefault:"1"`
	Timeout  time.Duration `env:"TIMEOUT"   envDefault:"30s"`
}

type pubsub struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
	logger  *slog.Logger

	mu   sync.Mutex
	subs map[string]Handler
}

// NewPubSub connects to the broker. An empty client ID gets a generated
// name so several historians can share one broker.
func NewPubSub(cfg Config, logger *slog.Logger) (PubSub, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "sparkpipe-" + namegenerator.NewGenerator().Generate()
	}

	ps := &pubsub{
		qos:     cfg.QoS,
		timeout: cfg.Timeout,
		logger:  logger,
		subs:    make(map[string]Handler),
	}

	client, err := ps.connect(cfg)
	if err != nil {
		return nil, err
	}
	ps.client = client

	return ps, nil
}

func (ps *pubsub) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return errEmptyTopic
	}

	return wait(ps.client.Publish(topic, ps.qos, false, payload), ps.timeout, errPublishTimeout)
}

func (ps *pubsub) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if topic == "" {
		return errEmptyTopic
	}

	ps.mu.Lock()
	ps.subs[topic] = handler
	ps.mu.Unlock()

	return wait(ps.client.Subscribe(topic, ps.qos, ps.mqttHandler(handler)), ps.timeout, errSubscribeTimeout)
}

func (ps *pubsub) Unsubscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return errEmptyTopic
	}

	ps.mu.Lock()
	delete(ps.subs, topic)
	ps.mu.Unlock()

	return wait(ps.client.Unsubscribe(topic), ps.timeout, errUnsubscribeTimeout)
}

func (ps *pubsub) Disconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		ps.client.Disconnect(disconnTimeout)

		return nil
	}
}

func (ps *pubsub) connect(cfg Config) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetConnectTimeout(connTimeout * time.Second).
		SetMaxReconnectInterval(reconnTimeout * time.Minute)

	// A clean session drops subscriptions, so they are restored on every connect.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		ps.logger.Info("MQTT connection established", slog.String("client_id", cfg.ClientID))
		go ps.resubscribe(c)
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		args := []any{}
		if err != nil {
			args = append(args, slog.Any("error", errors.Join(pkgerrors.ErrTransport, err)))
		}

		ps.logger.Warn("MQTT connection lost", args...)
	})

	opts.SetReconnectingHandler(func(_ mqtt.Client, options *mqtt.ClientOptions) {
		args := []any{}
		if options != nil {
			args = append(args,
				slog.String("client_id", options.ClientID),
				slog.String("username", options.Username),
			)
		}

		ps.logger.Info("MQTT reconnecting", args...)
	})

	client := mqtt.NewClient(opts)

	if err := wait(client.Connect(), cfg.Timeout, errConnectTimeout); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	return client, nil
}

func (ps *pubsub) resubscribe(c mqtt.Client) {
	ps.mu.Lock()
	subs := make(map[string]Handler, len(ps.subs))
	for topic, h := range ps.subs {
		subs[topic] = h
	}
	ps.mu.Unlock()

	for topic, h := range subs {
		if err := wait(c.Subscribe(topic, ps.qos, ps.mqttHandler(h)), ps.timeout, errSubscribeTimeout); err != nil {
			ps.logger.Error("failed to restore subscription", slog.String("topic", topic), slog.Any("error", err))
		}
	}
}

func (ps *pubsub) mqttHandler(h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, m mqtt.Message) {
		if err := h(m.Topic(), m.Payload()); err != nil {
			ps.logger.Warn(fmt.Sprintf("Failed to handle MQTT message: %s", err), slog.String("topic", m.Topic()))
		}

		m.Ack()
	}
}

// wait blocks until token completes or timeout elapses. A token's error is
// only final once it has completed.
func wait(token mqtt.Token, timeout time.Duration, errTimeout error) error {
	if !token.WaitTimeout(timeout) {
		return errors.Join(pkgerrors.ErrTransport, errTimeout)
	}
	if err := token.Error(); err != nil {
		return errors.Join(pkgerrors.ErrTransport, err)
	}

	return nil
}
