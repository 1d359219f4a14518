package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const relaySource = "review-scraper"

// RedisClient is the subset of the go-redis client the relay needs.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// OutboxRepo is the subset of OutboxRepository the relay needs.
type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
}

// Relay publishes committed outbox events to Redis streams.
type Relay struct {
	redis     RedisClient
	outbox    OutboxRepo
	counts    *OutboxRepository
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

func NewRelay(db *DB, redisClient RedisClient, logger *slog.Logger, config RelayConfig) *Relay {
	if config.PollInterval == 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	repo := NewOutboxRepository(db)
	return &Relay{
		redis:     redisClient,
		outbox:    repo,
		counts:    repo,
		logger:    logger.With("component", "relay"),
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
	}
}

// Start polls the outbox until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting relay",
		"interval", r.interval,
		"batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if err := r.processEvents(ctx); err != nil {
		r.logger.Error("failed to process events on startup", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.processEvents(ctx); err != nil {
				r.logger.Error("failed to process events", "error", err)
			}
		}
	}
}

func (r *Relay) processEvents(ctx context.Context) error {
	events, err := r.outbox.GetPending(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending events: %w", err)
	}

	if len(events) == 0 {
		return nil
	}

	r.logger.Debug("processing events", "count", len(events))

	for _, event := range events {
		if err := r.processEvent(ctx, event); err != nil {
			r.logger.Error("failed to process event",
				"event_id", event.ID,
				"aggregate_id", event.AggregateID,
				"error", err)
		}
	}

	return nil
}

func (r *Relay) processEvent(ctx context.Context, event *OutboxEvent) error {
	if err := r.publish(ctx, event); err != nil {
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			r.logger.Error("failed to mark event as failed",
				"event_id", event.ID,
				"error", markErr)
		}
		return err
	}

	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		r.logger.Error("failed to mark event as processed",
			"event_id", event.ID,
			"error", err)
		return err
	}

	r.logger.Info("event published",
		"event_id", event.ID,
		"event_type", event.EventType,
		"aggregate_id", event.AggregateID,
		"target_stream", event.TargetStream)

	return nil
}

// snapshotMessage is the JSON document carried in the "data" field of a
// stream entry.
type snapshotMessage struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Source    string          `json:"source"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
	Snapshot  SnapshotPayload `json:"snapshot"`
}

// publish appends a snapshot event to its stream. The flat fields let
// consumers filter by url or status without decoding data.
func (r *Relay) publish(ctx context.Context, event *OutboxEvent) error {
	if event.EventType != EventSnapshotPersisted {
		return fmt.Errorf("%w: unsupported event type %q", errInvalidEvent, event.EventType)
	}

	var snap SnapshotPayload
	if err := json.Unmarshal(event.Payload, &snap); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if snap.URL == "" {
		return fmt.Errorf("%w: snapshot payload without url", errInvalidEvent)
	}

	data, err := json.Marshal(snapshotMessage{
		EventID:   event.ID.String(),
		EventType: event.EventType,
		Source:    relaySource,
		Attempt:   event.RetryCount + 1,
		CreatedAt: event.CreatedAt,
		Snapshot:  snap,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal stream data: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: event.TargetStream,
		Values: map[string]any{
			"event_id":   event.ID.String(),
			"event_type": event.EventType,
			"product_id": event.AggregateID,
			"url":        snap.URL,
			"status":     string(snap.Status),
			"reviews":    strconv.Itoa(snap.Reviews),
			"created_at": strconv.FormatInt(event.CreatedAt.UnixNano(), 10),
			"data":       string(data),
		},
	}

	if _, err := r.redis.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	return nil
}

// GetPendingCount returns the number of events still waiting to be published.
func (r *Relay) GetPendingCount(ctx context.Context) (int64, error) {
	return r.counts.CountByStatus(ctx, OutboxStatusPending, OutboxStatusFailed)
}

// GetDeadLetterCount returns the number of events that gave up publishing.
func (r *Relay) GetDeadLetterCount(ctx context.Context) (int64, error) {
	return r.counts.CountByStatus(ctx, OutboxStatusDeadLetter)
}
