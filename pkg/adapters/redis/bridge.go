// Package redis bridges a Redis pub/sub channel to trigger sources: every
// message published on the channel fires the source it names.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/journey/internal/logging"
	"github.com/aretw0/journey/pkg/domain"
	"github.com/aretw0/journey/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultChannel is the channel used when none is configured.
const DefaultChannel = "journey:triggers"

// ErrInvalidMessage is returned for payloads that are not a Message.
var ErrInvalidMessage = errors.New("invalid trigger message")

// Message is the JSON payload carried on the channel.
type Message struct {
	Source string         `json:"source"`
	Params map[string]any `json:"params,omitempty"`
}

// Bridge subscribes to a channel and fires the named sources of a Dispatcher.
type Bridge struct {
	client     *backend.Client
	dispatcher ports.Dispatcher
	channel    string
	logger     *slog.Logger

	ready chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithChannel sets the subscribed channel.
func WithChannel(channel string) Option {
	return func(b *Bridge) {
		if channel != "" {
			b.channel = channel
		}
	}
}

// WithLogger sets the bridge logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// NewBridge creates a bridge on client for d.
func NewBridge(client *backend.Client, d ports.Dispatcher, opts ...Option) *Bridge {
	b := &Bridge{
		client:     client,
		dispatcher: d,
		channel:    DefaultChannel,
		logger:     logging.NewNop(),
		ready:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("channel", b.channel)
	return b
}

// Channel returns the subscribed channel.
func (b *Bridge) Channel() string {
	return b.channel
}

// Ready is closed once the subscription is confirmed by the server.
func (b *Bridge) Ready() <-chan struct{} {
	return b.ready
}

// Run subscribes and fires sources until ctx is done. Messages are handled
// concurrently; Run waits for the ones in flight before returning.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %q: %w", b.channel, err)
	}
	b.once.Do(func() { close(b.ready) })
	b.logger.Info("redis bridge subscribed")

	defer b.wg.Wait()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handle(ctx, msg.Payload)
			}()
		}
	}
}

func (b *Bridge) handle(ctx context.Context, payload string) {
	m, err := Decode(payload)
	if err != nil {
		b.logger.Warn("discarding message", "err", err)
		return
	}
	if err := b.dispatcher.Fire(ctx, m.Source, m.Params); err != nil {
		level := slog.LevelError
		if errors.Is(err, domain.ErrSourceNotFound) {
			level = slog.LevelWarn
		}
		b.logger.Log(ctx, level, "firing from redis failed", "source", m.Source, "err", err)
	}
}

// Decode parses a channel payload.
func Decode(payload string) (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if m.Source == "" {
		return Message{}, fmt.Errorf("%w: missing source", ErrInvalidMessage)
	}
	if m.Params == nil {
		m.Params = map[string]any{}
	}
	return m, nil
}

// Publish fires source on every bridge subscribed to channel. It returns the
// number of subscribers that received the message.
func Publish(ctx context.Context, client *backend.Client, channel, source string, params map[string]any) (int64, error) {
	payload, err := json.Marshal(Message{Source: source, Params: params})
	if err != nil {
		return 0, fmt.Errorf("encoding trigger message: %w", err)
	}
	n, err := client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("redis publish %q: %w", channel, err)
	}
	return n, nil
}
