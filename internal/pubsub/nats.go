package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
)

// NatsPubSub implements PubSub over NATS core subjects. Like the Redis
// backend it fans events out across every hub instance; NATS is the
// better fit when the deployment already runs a NATS cluster.
type NatsPubSub struct {
	conn   *nats.Conn
	mu     sync.Mutex
	closed bool
	logger *slog.Logger
}

// natsSubscription wraps a NATS subscription
type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

// NewNatsPubSub connects to a NATS server.
// url should be in the format: nats://host:4222
func NewNatsPubSub(url string) (*NatsPubSub, error) {
	conn, err := nats.Connect(url,
		nats.Name("parley-hub"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	logger := slog.Default().With("component", "pubsub", "backend", "nats")
	logger.Info("connected to NATS", "url", conn.ConnectedUrl())

	return &NatsPubSub{
		conn:   conn,
		logger: logger,
	}, nil
}

// subject maps a topic name onto a NATS subject. Topics use ':' as a
// separator, NATS subjects use '.'.
func subject(topic string) string {
	return "parley." + strings.ReplaceAll(topic, ":", ".")
}

// Publish sends a message to all subscribers of the topic across all instances.
func (ps *NatsPubSub) Publish(ctx context.Context, topic string, msg *Message) error {
	ps.mu.Lock()
	closed := ps.closed
	ps.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := ps.conn.Publish(subject(topic), data); err != nil {
		return fmt.Errorf("failed to publish to nats: %w", err)
	}

	return nil
}

// Subscribe registers a handler for messages on the given topic.
func (ps *NatsPubSub) Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return nil, ErrClosed
	}

	sub, err := ps.conn.Subscribe(subject(topic), func(m *nats.Msg) {
		var msg Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			ps.logger.Error("failed to unmarshal message", "error", err, "subject", m.Subject)
			return
		}
		go handler(ctx, &msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to nats subject: %w", err)
	}

	ps.logger.Debug("subscribed to topic", "topic", topic)

	return &natsSubscription{sub: sub}, nil
}

// Close drains the connection so in-flight messages are delivered first.
func (ps *NatsPubSub) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed {
		return nil
	}
	ps.closed = true

	if err := ps.conn.Drain(); err != nil {
		return fmt.Errorf("failed to drain nats connection: %w", err)
	}

	ps.logger.Info("NATS pubsub closed")
	return nil
}
