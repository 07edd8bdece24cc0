// Package notify carries fact-change notifications over Redis pub/sub.
//
// Messages use the same JSON shape as POST /facts/changed:
//
//	{"event_id": "...", "user_id": "...", "kind": "badge_earned", "occurred_at": "RFC3339"}
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	service "github.com/okian/questrank/internal/app"
	"github.com/okian/questrank/internal/domain/model"
	"github.com/okian/questrank/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Source labels notifications received here.
const Source = "redis"

// Message is the wire form of a fact change.
type Message struct {
	EventID    string     `json:"event_id"`
	UserID     string     `json:"user_id,omitempty"`
	Kind       string     `json:"kind,omitempty"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

// Decode parses payload into a fact change.
func Decode(payload string) (model.FactChange, error) {
	var m Message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return model.FactChange{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	m.EventID = strings.TrimSpace(m.EventID)
	if m.EventID == "" {
		return model.FactChange{}, fmt.Errorf("%w: missing event_id", ErrMalformed)
	}
	kind := model.FactKind(m.Kind)
	if kind != "" && !kind.Valid() {
		return model.FactChange{}, fmt.Errorf("%w: kind %q", ErrMalformed, m.Kind)
	}
	c := model.FactChange{EventID: m.EventID, UserID: m.UserID, Kind: kind, Source: Source}
	if m.OccurredAt != nil {
		c.OccurredAt = m.OccurredAt.UTC()
	}
	return c, nil
}

// Encode renders c in wire form.
func Encode(c model.FactChange) ([]byte, error) {
	m := Message{EventID: c.EventID, UserID: c.UserID, Kind: string(c.Kind)}
	if !c.OccurredAt.IsZero() {
		t := c.OccurredAt.UTC()
		m.OccurredAt = &t
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.EventID, err)
	}
	return b, nil
}

// FactHandler accepts decoded notifications.
type FactHandler interface {
	HandleFactChange(ctx context.Context, c model.FactChange) (service.Outcome, error)
}

// PubSubClient is the subset of a redis client used to subscribe.
type PubSubClient interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Subscriber feeds pub/sub messages into a FactHandler.
type Subscriber struct {
	handler    FactHandler
	log        logger.Logger
	retries    int
	retryDelay time.Duration

	accepted   atomic.Int64
	duplicates atomic.Int64
	dropped    atomic.Int64
}

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithLogger sets the subscriber logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Subscriber) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRetry sets how often a notification is retried while the service
// queue is full, and the delay between attempts.
func WithRetry(retries int, delay time.Duration) Option {
	return func(s *Subscriber) {
		if retries >= 0 {
			s.retries = retries
		}
		if delay > 0 {
			s.retryDelay = delay
		}
	}
}

// NewSubscriber returns a Subscriber delivering to handler.
func NewSubscriber(handler FactHandler, opts ...Option) *Subscriber {
	s := &Subscriber{
		handler:    handler,
		log:        logger.Nop(),
		retries:    5,
		retryDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run subscribes to channel and consumes until ctx is done.
func (s *Subscriber) Run(ctx context.Context, client PubSubClient, channel string) error {
	if channel == "" {
		return ErrNoChannel
	}
	ps := client.Subscribe(ctx, channel)
	defer func() { _ = ps.Close() }()

	// Wait for the subscription to be confirmed before reporting readiness.
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	s.log.Info(ctx, "subscribed to fact changes", logger.String("channel", channel))
	return s.Consume(ctx, ps.Channel())
}

// Consume handles messages until msgs is closed or ctx is done.
func (s *Subscriber) Consume(ctx context.Context, msgs <-chan *redis.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			s.handle(ctx, msg)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, msg *redis.Message) {
	c, err := Decode(msg.Payload)
	if err != nil {
		s.dropped.Add(1)
		s.log.Warn(ctx, "dropping fact-change message",
			logger.String("channel", msg.Channel),
			logger.Error(err),
		)
		return
	}

	for attempt := 0; ; attempt++ {
		outcome, err := s.handler.HandleFactChange(ctx, c)
		switch {
		case err == nil && outcome == service.Duplicate:
			s.duplicates.Add(1)
			return
		case err == nil:
			s.accepted.Add(1)
			return
		case errors.Is(err, service.ErrBusy) && attempt < s.retries:
			select {
			case <-ctx.Done():
				s.dropped.Add(1)
				return
			case <-time.After(s.retryDelay):
			}
		default:
			s.dropped.Add(1)
			s.log.Error(ctx, "fact-change notification not handled",
				logger.String("eventID", c.EventID),
				logger.Int("attempts", attempt+1),
				logger.Error(err),
			)
			return
		}
	}
}

// Stats reports how many messages were accepted, duplicate or dropped.
func (s *Subscriber) Stats() (accepted, duplicates, dropped int64) {
	return s.accepted.Load(), s.duplicates.Load(), s.dropped.Load()
}

// PublishClient is the subset of a redis client used to publish.
type PublishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher announces fact changes on a channel.
type Publisher struct {
	client  PublishClient
	channel string
}

// NewPublisher returns a Publisher for channel.
func NewPublisher(client PublishClient, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

// Publish sends c and returns the number of subscribers that received it.
func (p *Publisher) Publish(ctx context.Context, c model.FactChange) (int64, error) {
	if p.channel == "" {
		return 0, ErrNoChannel
	}
	payload, err := Encode(c)
	if err != nil {
		return 0, err
	}
	n, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("publish %s: %w", c.EventID, err)
	}
	return n, nil
}
