// Package notify broadcasts configuration-change signals between the
// configure CLI and running servers over Redis pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ReloadEvent announces that a stored configuration changed.
type ReloadEvent struct {
	Source    string    `json:"source"`
	ChangedAt time.Time `json:"changed_at"`
}

// Connect parses redisURL, opens a client and checks connectivity.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// Publisher sends reload events.
type Publisher struct {
	client  redis.UniversalClient
	channel string
}

// NewPublisher creates a publisher on channel.
func NewPublisher(client redis.UniversalClient, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

// PublishReload announces a change made by source. It returns the number of
// subscribers that received the event.
func (p *Publisher) PublishReload(ctx context.Context, source string) (int64, error) {
	payload, err := json.Marshal(ReloadEvent{Source: source, ChangedAt: time.Now().UTC()})
	if err != nil {
		return 0, fmt.Errorf("encode reload event: %w", err)
	}
	n, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("publish reload event: %w", err)
	}
	return n, nil
}

// Subscriber invokes a callback for every reload event on a channel.
type Subscriber struct {
	client  redis.UniversalClient
	channel string
	log     *zap.Logger
}

// NewSubscriber creates a subscriber on channel.
func NewSubscriber(client redis.UniversalClient, channel string, log *zap.Logger) *Subscriber {
	return &Subscriber{client: client, channel: channel, log: log}
}

// Listen blocks until ctx is cancelled, calling onReload for each event.
// Malformed payloads are logged and still trigger a reload.
func (s *Subscriber) Listen(ctx context.Context, onReload func(context.Context, ReloadEvent)) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer func() {
		if err := sub.Close(); err != nil {
			s.log.Warn("failed_to_close_reload_subscription", zap.Error(err))
		}
	}()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.channel, err)
	}
	s.log.Info("reload_subscription_started", zap.String("channel", s.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev ReloadEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.log.Warn("malformed_reload_event", zap.Error(err))
			}
			s.log.Info("reload_event_received",
				zap.String("channel", msg.Channel),
				zap.String("source", ev.Source),
			)
			onReload(ctx, ev)
		}
	}
}
