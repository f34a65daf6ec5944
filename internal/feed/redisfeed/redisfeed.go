// Package redisfeed carries change events between service instances over
// Redis pub/sub.
//
// Stores publish to Redis through a Publisher. Every instance runs a Relay
// that subscribes to the same channel and re-publishes into its local
// feed.Broker, so live views on any instance see every commit.
package redisfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/mmynk/teamsync/internal/feed"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "teamsync:changes"

// Connect creates a client and verifies the server is reachable.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Publisher sends events to a Redis channel.
type Publisher struct {
	client  *redis.Client
	channel string
	timeout time.Duration
}

var _ feed.Publisher = (*Publisher)(nil)

// NewPublisher publishes to channel, or DefaultChannel when empty.
func NewPublisher(client *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel, timeout: time.Second}
}

// Publish encodes ev as JSON and publishes it.
func (p *Publisher) Publish(ctx context.Context, ev feed.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Relay forwards events from a Redis channel into a local publisher.
type Relay struct {
	client  *redis.Client
	channel string
	local   feed.Publisher
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRelay forwards channel (or DefaultChannel) into local.
func NewRelay(client *redis.Client, channel string, local feed.Publisher, logger *slog.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{client: client, channel: channel, local: local, logger: logger}
}

// Start subscribes and begins forwarding in the background. It returns once
// the subscription is confirmed by the server.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return errors.New("relay already started")
	}

	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.forward(runCtx, pubsub)

	r.logger.Info("redis relay started", "channel", r.channel)
	return nil
}

// Close stops forwarding and waits for the relay goroutine to exit.
func (r *Relay) Close() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Relay) forward(ctx context.Context, pubsub *redis.PubSub) {
	defer close(r.done)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev feed.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Warn("dropping malformed change event", "channel", msg.Channel, "error", err)
				continue
			}
			if err := r.local.Publish(ctx, ev); err != nil {
				r.logger.Error("failed to relay change event", "topic", ev.Topic, "error", err)
			}
		}
	}
}
