// Package fanout implements the event-driven fan-out worker: it consumes
// post_created events and writes the post into each follower's cached
// timeline. Multiple instances may run concurrently against the shared
// bus; idempotency comes from timeline entry uniqueness, so redelivered
// and duplicated events are harmless.
package fanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/darshjasani/Pulse/internal/bus"
	"github.com/darshjasani/Pulse/internal/cache"
	"github.com/darshjasani/Pulse/internal/metrics"
	"github.com/darshjasani/Pulse/internal/model"
	"github.com/darshjasani/Pulse/internal/repository"
)

// Options tunes one worker instance.
type Options struct {
	// BatchSize is the max messages fetched per receive.
	BatchSize int
	// ReceiveWait is the long-poll duration per receive.
	ReceiveWait time.Duration
	// Concurrency bounds parallel message processing within a batch.
	Concurrency int
	// FollowerChunk is how many follower timelines are written per cache
	// round-trip.
	FollowerChunk int
}

// Worker consumes the bus and fans posts out to follower timelines.
type Worker struct {
	eventBus  bus.EventBus
	timelines cache.TimelineCache
	users     repository.UserRepository
	follows   repository.FollowRepository
	collector metrics.Collector
	logger    *slog.Logger
	opts      Options
}

// NewWorker constructs a Worker. Zero option fields take the defaults:
// batch 10, wait 20s, concurrency 10, chunk 1000.
func NewWorker(
	eventBus bus.EventBus,
	timelines cache.TimelineCache,
	users repository.UserRepository,
	follows repository.FollowRepository,
	collector metrics.Collector,
	logger *slog.Logger,
	opts Options,
) *Worker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.ReceiveWait <= 0 {
		opts.ReceiveWait = 20 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	if opts.FollowerChunk <= 0 {
		opts.FollowerChunk = 1000
	}
	return &Worker{
		eventBus:  eventBus,
		timelines: timelines,
		users:     users,
		follows:   follows,
		collector: collector,
		logger:    logger,
		opts:      opts,
	}
}

// Run consumes the bus until ctx is canceled. On shutdown no new batch
// is accepted, in-flight messages finish (their cache and ack calls run
// on a detached context), and unacked messages return to the queue after
// the visibility timeout.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("fan-out worker starting",
		slog.Int("batch_size", w.opts.BatchSize),
		slog.Int("concurrency", w.opts.Concurrency),
		slog.Int("follower_chunk", w.opts.FollowerChunk),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("fan-out worker stopped")
			return nil
		default:
		}

		msgs, err := w.eventBus.Receive(ctx, w.opts.BatchSize, w.opts.ReceiveWait)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("fan-out worker stopped")
				return nil
			}
			w.logger.Error("failed to receive events", slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		// In-flight messages complete even if shutdown starts mid-batch.
		processCtx := context.WithoutCancel(ctx)
		p := pool.New().WithMaxGoroutines(w.opts.Concurrency)
		for _, msg := range msgs {
			p.Go(func() {
				w.ProcessMessage(processCtx, msg)
			})
		}
		p.Wait()
	}
}

// ProcessMessage handles one received event. Acks on success, on poison
// payloads, on events whose author no longer exists, and on celebrity
// skips; leaves everything else unacked so the visibility timeout
// redelivers it.
func (w *Worker) ProcessMessage(ctx context.Context, msg bus.Message) {
	var event model.PostCreatedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil || event.EventType != "post_created" {
		// Poison messages must not stall the queue.
		w.collector.RecordPoisonMessage()
		w.logger.Error("acking malformed event payload",
			slog.String("handle", msg.Handle),
			slog.String("payload", string(msg.Payload)),
		)
		w.ack(ctx, msg.Handle)
		return
	}

	// Re-read the author: the celebrity flag may have flipped since emit,
	// and a millions-scale fan-out must not run for a now-celebrity.
	author, err := w.users.GetByID(ctx, event.AuthorID)
	if err != nil {
		if model.KindOf(err) == model.KindNotFound {
			w.logger.Warn("acking event for deleted author",
				slog.Int64("author_id", event.AuthorID),
				slog.Int64("post_id", event.PostID),
			)
			w.ack(ctx, msg.Handle)
			return
		}
		w.logger.Error("failed to load author; leaving event for redelivery",
			slog.Int64("author_id", event.AuthorID),
			slog.String("error", err.Error()),
		)
		return
	}
	if author.IsCelebrity {
		w.logger.Info("skipping fan-out for celebrity author",
			slog.Int64("author_id", author.ID),
			slog.Int64("post_id", event.PostID),
		)
		w.ack(ctx, msg.Handle)
		return
	}

	start := time.Now()
	written, err := w.fanOut(ctx, event)
	if err != nil {
		// No ack: redelivery retries the whole fan-out. Chunks already
		// written are re-applied as no-ops by entry uniqueness.
		w.collector.RecordFanoutFailure()
		w.logger.Error("fan-out failed; leaving event for redelivery",
			slog.Int64("post_id", event.PostID),
			slog.Int64("deliveries", msg.Deliveries),
			slog.String("error", err.Error()),
		)
		return
	}

	w.ack(ctx, msg.Handle)
	w.collector.RecordFanoutSuccess(written)
	w.collector.RecordFanoutLatency(time.Since(start))
	w.logger.Info("fan-out complete",
		slog.Int64("post_id", event.PostID),
		slog.Int("followers", written),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
}

// fanOut enumerates the author's followers lazily and writes the post to
// their timelines in chunks, one pipelined cache round-trip per chunk.
// The author's own timeline gets the post as well. Returns the number of
// follower timelines written; the author's own timeline is not counted.
func (w *Worker) fanOut(ctx context.Context, event model.PostCreatedEvent) (int, error) {
	score := scoreOf(event)

	stream, err := w.follows.FollowersOf(ctx, event.AuthorID)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	written := 0
	chunk := make([]int64, 0, w.opts.FollowerChunk)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := w.timelines.FanOut(ctx, chunk, event.PostID, score); err != nil {
			return err
		}
		written += len(chunk)
		chunk = chunk[:0]
		return nil
	}

	for stream.Next() {
		chunk = append(chunk, stream.UserID())
		if len(chunk) == w.opts.FollowerChunk {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return written, err
	}
	if err := flush(); err != nil {
		return written, err
	}

	if err := w.timelines.Add(ctx, event.AuthorID, event.PostID, score); err != nil {
		return written, err
	}
	return written, nil
}

func (w *Worker) ack(ctx context.Context, handle string) {
	if err := w.eventBus.Ack(ctx, handle); err != nil {
		// The visibility timeout will redeliver; processing again is a
		// no-op by entry uniqueness.
		w.logger.Warn("failed to ack event",
			slog.String("handle", handle),
			slog.String("error", err.Error()),
		)
	}
}

// scoreOf converts the event's fractional-second timestamp to the
// integer-millisecond score used by the timeline cache.
func scoreOf(event model.PostCreatedEvent) int64 {
	return int64(math.Round(event.Timestamp * 1000))
}
