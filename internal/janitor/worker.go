package janitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ryan4259/r2-image-compressor/internal/config"
	"github.com/ryan4259/r2-image-compressor/internal/metrics"
)

// Deleter removes one object from the bucket. Deleting an absent key must
// succeed so retried jobs stay idempotent.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Invalidator drops the cached copy of an object that no longer exists.
type Invalidator interface {
	Remove(ctx context.Context, key string) error
}

// Worker consumes the orphan stream through a consumer group and deletes
// the stranded objects.
type Worker struct {
	rc     redis.UniversalClient
	cfg    config.JanitorConfig
	store  Deleter
	cache  Invalidator
	logger zerolog.Logger
}

// Init wires the producer and starts the background worker. The returned
// producer is what the pipeline enqueues orphaned keys onto.
func Init(ctx context.Context, rc redis.UniversalClient, cfg config.JanitorConfig, store Deleter, cache Invalidator) *Producer {
	producer := NewProducer(rc, cfg.Stream, cfg.MaxLen)
	worker := NewWorker(rc, cfg, store, cache)

	go func() {
		if err := worker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			worker.logger.Error().Err(err).Msg("worker stopped")
		}
	}()

	return producer
}

func NewWorker(rc redis.UniversalClient, cfg config.JanitorConfig, store Deleter, cache Invalidator) *Worker {
	return &Worker{
		rc:     rc,
		cfg:    cfg,
		store:  store,
		cache:  cache,
		logger: log.With().Str("component", "janitor").Logger(),
	}
}

func (w *Worker) EnsureGroup(ctx context.Context) error {
	// Without MkStream, Redis errors out when the group is created before
	// any message exists in the stream.
	err := w.rc.XGroupCreateMkStream(ctx, w.cfg.Stream, w.cfg.Group, "0").Err()
	// BUSYGROUP just means the group already exists.
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (w *Worker) Start(ctx context.Context) error {
	if err := w.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	w.logger.Info().
		Str("stream", w.cfg.Stream).
		Str("group", w.cfg.Group).
		Int("workers", w.cfg.Workers).
		Msg("starting consumer group")

	// Adopt pending messages abandoned by dead consumers.
	w.autoClaim(ctx)

	errCh := make(chan error, w.cfg.Workers)
	for i := 0; i < w.cfg.Workers; i++ {
		id := i
		go func() {
			err := w.loop(ctx)
			if err != nil {
				w.logger.Error().Int("worker", id).Err(err).Msg("worker loop exited")
			} else {
				w.logger.Info().Int("worker", id).Msg("worker stopped")
			}
			errCh <- err
		}()
	}

	select {
	case <-ctx.Done():
		w.logger.Info().Msg("context canceled, stopping workers")
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("worker loop exited: %w", err)
		}
		return nil
	}
}

// autoClaim takes over messages that were delivered to another consumer but
// never acknowledged, so a crashed worker cannot strand a cleanup forever.
func (w *Worker) autoClaim(ctx context.Context) {
	next := "0-0"

	// A message must sit idle for a while before we steal it; scale with the
	// block timeout so slow-but-alive consumers keep their messages.
	minIdle := 30 * time.Second
	if w.cfg.BlockTimeout > 0 {
		if t := w.cfg.BlockTimeout * 6; t > minIdle {
			minIdle = t
		}
	}

	for {
		msgs, start, err := w.rc.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   w.cfg.Stream,
			Group:    w.cfg.Group,
			Consumer: w.cfg.Consumer,
			MinIdle:  minIdle,
			Start:    next,
			Count:    100,
		}).Result()
		if err != nil || len(msgs) == 0 {
			return
		}
		next = start
	}
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		// XREADGROUP marks delivered messages as pending for this consumer;
		// they leave the pending list only on XACK in handle. A crash before
		// the ack leaves the message for autoClaim after restart.
		streams, err := w.rc.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    w.cfg.Group,
			Consumer: w.cfg.Consumer,
			Streams:  []string{w.cfg.Stream, ">"},
			Count:    1,
			Block:    w.cfg.BlockTimeout,
		}).Result()
		if err != nil && err != redis.Nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		for _, s := range streams {
			for _, m := range s.Messages {
				w.handle(ctx, m)
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, m redis.XMessage) {
	defer w.rc.XAck(ctx, w.cfg.Stream, w.cfg.Group, m.ID)

	raw, ok := m.Values["payload"].(string)
	if !ok {
		w.logger.Warn().Str("id", m.ID).Msg("message without payload, dropping")
		return
	}
	var job OrphanJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		w.logger.Warn().Str("id", m.ID).Err(err).Msg("undecodable job, dropping")
		return
	}
	attempt := toInt(m.Values["attempt"])

	if err := w.process(ctx, job); err != nil {
		if attempt+1 >= w.cfg.MaxAttempts {
			w.logger.Error().Str("key", job.Key).Int("attempts", attempt+1).Err(err).
				Msg("giving up on orphan")
			sentry.CaptureException(fmt.Errorf("janitor gave up on %s after %d attempts: %w", job.Key, attempt+1, err))
			metrics.OrphanCleanups.WithLabelValues("dropped").Inc()
			return
		}
		// Exponential backoff requeue.
		backoff := w.cfg.BackoffBase << attempt
		time.AfterFunc(backoff, func() {
			_ = w.rc.XAdd(context.Background(), &redis.XAddArgs{
				Stream: w.cfg.Stream,
				MaxLen: w.cfg.MaxLen,
				Values: map[string]any{
					"payload": raw,
					"attempt": attempt + 1,
				},
			}).Err()
		})
		return
	}

	metrics.OrphanCleanups.WithLabelValues("deleted").Inc()
	w.logger.Info().Str("key", job.Key).Msg("orphan deleted")
}

func (w *Worker) process(ctx context.Context, job OrphanJob) error {
	if err := w.store.Delete(ctx, job.Key); err != nil {
		return fmt.Errorf("delete %s: %w", job.Key, err)
	}
	// A cached copy would keep serving the deleted bytes until its TTL.
	if err := w.cache.Remove(ctx, job.Key); err != nil {
		w.logger.Warn().Str("key", job.Key).Err(err).Msg("failed to drop cached copy")
	}
	return nil
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case string:
		var x int
		fmt.Sscanf(t, "%d", &x)
		return x
	default:
		return 0
	}
}
