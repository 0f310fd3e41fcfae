package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Iridium40/roam-services-sub004/internal/event"
	"github.com/Iridium40/roam-services-sub004/pkg/logger"
)

// DefaultChannel is the pub/sub channel the booking store publishes
// change notifications on.
const DefaultChannel = "notifier:events"

// Envelope kinds.
const (
	envelopeRowChange = "row_change"
	envelopeMessage   = "message"
)

// envelope is the tagged wire shape carried over the bus.
type envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	EmittedAt time.Time       `json:"emitted_at"`
}

// Publisher pushes change notifications onto the bus. Used by the
// collaborator store's trigger side; exposed here so tests and tooling can
// emit the same wire shape the subscriber consumes.
type Publisher struct {
	client  redis.UniversalClient
	channel string
}

func NewPublisher(client redis.UniversalClient, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel}
}

func (p *Publisher) publish(ctx context.Context, kind string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}
	env, err := json.Marshal(envelope{Type: kind, Data: raw, EmittedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, env).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}

// PublishRowChange emits a booking row change notification.
func (p *Publisher) PublishRowChange(ctx context.Context, change event.RowChange) error {
	return p.publish(ctx, envelopeRowChange, change)
}

// PublishMessage emits a new-message notification.
func (p *Publisher) PublishMessage(ctx context.Context, msg event.MessageEvent) error {
	return p.publish(ctx, envelopeMessage, msg)
}

// Ingestor consumes bus envelopes. Implemented by the event adapter.
type Ingestor interface {
	ProcessRowChange(ctx context.Context, change event.RowChange) (int, error)
	ProcessMessage(ctx context.Context, msg event.MessageEvent) (int, error)
}

// Subscriber drains the bus and feeds each envelope into the adapter.
// Malformed envelopes are logged and skipped; a dropped subscription is
// re-established after a short pause.
type Subscriber struct {
	client    redis.UniversalClient
	channel   string
	ingestor  Ingestor
	log       *slog.Logger
	reconnect time.Duration
}

type SubscriberOption func(*Subscriber)

func WithLogger(log *slog.Logger) SubscriberOption {
	return func(s *Subscriber) { s.log = log }
}

func WithChannel(channel string) SubscriberOption {
	return func(s *Subscriber) {
		if channel != "" {
			s.channel = channel
		}
	}
}

func WithReconnectDelay(d time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		if d > 0 {
			s.reconnect = d
		}
	}
}

func NewSubscriber(client redis.UniversalClient, ingestor Ingestor, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		client:    client,
		channel:   DefaultChannel,
		ingestor:  ingestor,
		log:       slog.Default(),
		reconnect: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run consumes the bus until ctx is canceled. Returns ctx.Err() on
// cancellation; all other failures are retried.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		if err := s.consume(ctx); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.WarnContext(ctx, "bus subscription dropped, reconnecting",
				slog.String("channel", s.channel), logger.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnect):
		}
	}
}

func (s *Subscriber) consume(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer func() { _ = sub.Close() }()

	// Fail fast when redis is unreachable instead of blocking on Channel.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription channel closed")
			}
			s.handle(ctx, []byte(msg.Payload))
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		s.log.ErrorContext(ctx, "malformed bus envelope", logger.Error(err))
		return
	}

	var err error
	switch env.Type {
	case envelopeRowChange:
		var change event.RowChange
		if err = json.Unmarshal(env.Data, &change); err == nil {
			_, err = s.ingestor.ProcessRowChange(ctx, change)
		}
	case envelopeMessage:
		var msg event.MessageEvent
		if err = json.Unmarshal(env.Data, &msg); err == nil {
			_, err = s.ingestor.ProcessMessage(ctx, msg)
		}
	default:
		s.log.WarnContext(ctx, "unknown bus envelope type", slog.String("type", env.Type))
		return
	}

	if err != nil {
		s.log.ErrorContext(ctx, "failed to ingest bus envelope",
			slog.String("type", env.Type), logger.Error(err))
	}
}
