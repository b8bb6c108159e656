// Package events publishes processed exchanges to a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nidhogg/jarvis/internal/agent"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultStream  = "jarvis:exchanges"
	defaultMaxLen  = 10000
	publishTimeout = 2 * time.Second
)

// Event is one processed exchange as written to the stream.
type Event struct {
	ID             string    `json:"id"`
	StreamID       string    `json:"stream_id,omitempty"`
	SessionID      string    `json:"session_id"`
	AgentID        string    `json:"agent_id"`
	Message        string    `json:"message"`
	Response       string    `json:"response"`
	Category       string    `json:"category"`
	Confidence     float64   `json:"confidence"`
	Model          string    `json:"model,omitempty"`
	Steps          []string  `json:"steps"`
	GeneratorError string    `json:"generator_error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Bus writes exchange events to a Redis stream.
type Bus struct {
	rdb    *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewBus connects to Redis and verifies the connection.
func NewBus(ctx context.Context, redisURL, stream string, logger *zap.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewBusWithClient(rdb, stream, logger), nil
}

// NewBusWithClient wraps an existing client.
func NewBusWithClient(rdb *redis.Client, stream string, logger *zap.Logger) *Bus {
	if stream == "" {
		stream = DefaultStream
	}
	return &Bus{rdb: rdb, stream: stream, maxLen: defaultMaxLen, logger: logger}
}

// Stream returns the stream key.
func (b *Bus) Stream() string { return b.stream }

// Publish appends an event to the stream, trimming it to roughly maxLen entries.
func (b *Bus) Publish(ctx context.Context, ev *Event) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	id, err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"session": ev.SessionID,
			"data":    string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", b.stream, err)
	}
	b.logger.Debug("published exchange",
		zap.String("session", ev.SessionID),
		zap.String("category", ev.Category),
		zap.String("stream_id", id))
	return id, nil
}

// Recent returns up to count of the newest events, newest first.
func (b *Bus) Recent(ctx context.Context, count int64) ([]Event, error) {
	if count <= 0 {
		count = 20
	}
	msgs, err := b.rdb.XRevRangeN(ctx, b.stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.stream, err)
	}
	out := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		data, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			b.logger.Warn("skipping malformed event", zap.String("stream_id", m.ID), zap.Error(err))
			continue
		}
		ev.StreamID = m.ID
		out = append(out, ev)
	}
	return out, nil
}

// Observe publishes an exchange. Failures are logged, never returned, so a
// Redis outage cannot affect replies.
func (b *Bus) Observe(ctx context.Context, ex *agent.Exchange) {
	if ex.Empty {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if _, err := b.Publish(ctx, FromExchange(ex)); err != nil {
		b.logger.Warn("publish exchange failed", zap.String("session", ex.SessionID), zap.Error(err))
	}
}

// FromExchange converts a processed exchange into an event.
func FromExchange(ex *agent.Exchange) *Event {
	ev := &Event{
		ID:         ex.Reply.ChainID,
		SessionID:  ex.SessionID,
		AgentID:    ex.AgentID,
		Message:    ex.Message,
		Response:   ex.Reply.Response,
		Category:   ex.Reply.Category,
		Confidence: ex.Reply.Confidence,
		Model:      ex.Reply.Model,
		Steps:      []string{},
		Timestamp:  time.Now().UTC(),
	}
	if ex.Chain != nil {
		ev.Timestamp = ex.Chain.StartedAt.UTC()
		for _, s := range ex.Chain.Steps {
			ev.Steps = append(ev.Steps, string(s.Type))
		}
	}
	if ex.GeneratorErr != nil {
		ev.GeneratorError = ex.GeneratorErr.Error()
	}
	return ev
}

// Ping checks the Redis connection.
func (b *Bus) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Close shuts down the Redis connection.
func (b *Bus) Close() error {
	return b.rdb.Close()
}
