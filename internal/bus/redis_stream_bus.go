package bus

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/rueidis"

	"github.com/darshjasani/Pulse/internal/model"
)

const (
	// publishMaxAttempts bounds publish retries (first try included).
	publishMaxAttempts = 3
	// publishAttemptTimeout is the per-attempt deadline on publish.
	publishAttemptTimeout = 5 * time.Second
	// probeTimeout bounds the Available liveness ping.
	probeTimeout = 2 * time.Second
)

// RedisStreamBus is an EventBus backed by a Redis Stream with one
// consumer group shared by the worker fleet.
//
// Redelivery uses XAUTOCLAIM: an entry that stays pending longer than
// the visibility timeout is claimed by whichever consumer polls next.
// Receive counts are tracked in a sidecar hash keyed by entry id, and an
// entry whose count exceeds the budget is appended to the "<stream>:dlq"
// stream and acked away from the group.
type RedisStreamBus struct {
	client            rueidis.Client
	stream            string
	group             string
	consumer          string
	visibilityTimeout time.Duration
	maxReceives       int64
	logger            *slog.Logger
}

// Options configures a RedisStreamBus.
type Options struct {
	Stream            string
	Group             string
	Consumer          string
	VisibilityTimeout time.Duration
	MaxReceives       int
}

// NewRedisStreamBus constructs the bus and ensures the consumer group
// exists (creating the stream if needed). Consumer defaults to a random
// name so multiple worker instances never collide.
func NewRedisStreamBus(ctx context.Context, client rueidis.Client, opts Options, logger *slog.Logger) (*RedisStreamBus, error) {
	if opts.Stream == "" {
		opts.Stream = "post_created"
	}
	if opts.Group == "" {
		opts.Group = "fanout"
	}
	if opts.Consumer == "" {
		opts.Consumer = "worker-" + uuid.NewString()
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 30 * time.Second
	}
	if opts.MaxReceives <= 0 {
		opts.MaxReceives = 3
	}

	b := &RedisStreamBus{
		client:            client,
		stream:            opts.Stream,
		group:             opts.Group,
		consumer:          opts.Consumer,
		visibilityTimeout: opts.VisibilityTimeout,
		maxReceives:       int64(opts.MaxReceives),
		logger:            logger,
	}

	// A failure here is reported but not fatal to construction: the API
	// process can serve reads without a bus, and Receive re-ensures the
	// group once the bus comes back.
	if err := b.ensureGroup(ctx); err != nil {
		return b, err
	}
	return b, nil
}

// ensureGroup creates the consumer group (and the stream, if missing).
// An already-existing group is not an error.
func (b *RedisStreamBus) ensureGroup(ctx context.Context) error {
	err := b.client.Do(ctx,
		b.client.B().XgroupCreate().Key(b.stream).Group(b.group).Id("0").Mkstream().Build(),
	).Error()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return model.NewUnavailable("failed to create consumer group", err)
	}
	return nil
}

func (b *RedisStreamBus) dlqStream() string   { return b.stream + ":dlq" }
func (b *RedisStreamBus) receivesKey() string { return b.stream + ":receives" }

// Publish appends the payload to the stream, retrying transient failures
// with exponential backoff. Each attempt gets its own deadline; the
// entry is durably committed before Publish returns nil.
func (b *RedisStreamBus) Publish(ctx context.Context, payload []byte) error {
	eventID := uuid.NewString()

	op := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, publishAttemptTimeout)
		defer cancel()
		return b.client.Do(attemptCtx,
			b.client.B().Xadd().Key(b.stream).Id("*").
				FieldValue().
				FieldValue("event_id", eventID).
				FieldValue("payload", string(payload)).
				Build(),
		).Error()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(bo, publishMaxAttempts-1), ctx))
	if err != nil {
		return model.NewUnavailable("failed to publish event", err)
	}
	return nil
}

// Receive first reclaims entries whose visibility timeout has expired,
// then long-polls the stream for new entries to fill the batch. Entries
// over the redelivery budget are dead-lettered here so consumers never
// see them.
func (b *RedisStreamBus) Receive(ctx context.Context, maxCount int, wait time.Duration) ([]Message, error) {
	if maxCount <= 0 {
		maxCount = 10
	}

	entries, err := b.reclaimExpired(ctx, maxCount)
	if err != nil {
		// The group can be missing if the bus was down at boot; recreate
		// it and let the caller's next poll proceed normally.
		if strings.Contains(err.Error(), "NOGROUP") {
			if gerr := b.ensureGroup(ctx); gerr != nil {
				return nil, gerr
			}
		}
		return nil, err
	}

	if len(entries) < maxCount {
		fresh, err := b.readNew(ctx, maxCount-len(entries), wait)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fresh...)
	}

	msgs := make([]Message, 0, len(entries))
	for _, entry := range entries {
		deliveries, err := b.client.Do(ctx,
			b.client.B().Hincrby().Key(b.receivesKey()).Field(entry.ID).Increment(1).Build(),
		).AsInt64()
		if err != nil {
			return nil, model.NewUnavailable("failed to track receive count", err)
		}

		if deliveries > b.maxReceives {
			b.deadLetter(ctx, entry)
			continue
		}

		msgs = append(msgs, Message{
			Handle:     entry.ID,
			Payload:    []byte(entry.FieldValues["payload"]),
			Deliveries: deliveries,
		})
	}
	return msgs, nil
}

// reclaimExpired claims up to maxCount entries that have been pending
// longer than the visibility timeout, from any consumer in the group.
func (b *RedisStreamBus) reclaimExpired(ctx context.Context, maxCount int) ([]rueidis.XRangeEntry, error) {
	minIdle := strconv.FormatInt(b.visibilityTimeout.Milliseconds(), 10)
	resp, err := b.client.Do(ctx,
		b.client.B().Xautoclaim().Key(b.stream).Group(b.group).Consumer(b.consumer).
			MinIdleTime(minIdle).Start("0-0").Count(int64(maxCount)).Build(),
	).ToArray()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, model.NewUnavailable("failed to reclaim expired events", err)
	}
	if len(resp) < 2 {
		return nil, nil
	}
	entries, err := resp[1].AsXRange()
	if err != nil {
		return nil, model.NewUnavailable("failed to parse reclaimed events", err)
	}
	return entries, nil
}

// readNew long-polls the stream for entries never delivered to the
// group. A non-positive wait reads without blocking, since BLOCK 0 would
// block indefinitely.
func (b *RedisStreamBus) readNew(ctx context.Context, maxCount int, wait time.Duration) ([]rueidis.XRangeEntry, error) {
	var cmd rueidis.Completed
	if wait > 0 {
		blockMs := wait.Milliseconds()
		if blockMs == 0 {
			blockMs = 1 // BLOCK 0 would block forever
		}
		cmd = b.client.B().Xreadgroup().Group(b.group, b.consumer).
			Count(int64(maxCount)).Block(blockMs).
			Streams().Key(b.stream).Id(">").Build()
	} else {
		cmd = b.client.B().Xreadgroup().Group(b.group, b.consumer).
			Count(int64(maxCount)).
			Streams().Key(b.stream).Id(">").Build()
	}
	streams, err := b.client.Do(ctx, cmd).AsXRead()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, model.NewUnavailable("failed to receive events", err)
	}
	return streams[b.stream], nil
}

// deadLetter moves the entry to the DLQ stream and acks it on the source
// so no consumer in the group sees it again.
func (b *RedisStreamBus) deadLetter(ctx context.Context, entry rueidis.XRangeEntry) {
	cmd := b.client.B().Xadd().Key(b.dlqStream()).Id("*").FieldValue()
	for field, value := range entry.FieldValues {
		cmd = cmd.FieldValue(field, value)
	}
	if err := b.client.Do(ctx, cmd.Build()).Error(); err != nil {
		// Leave the entry pending rather than lose it; it will be
		// retried on a later reclaim.
		b.logger.Error("failed to move event to dead-letter stream",
			slog.String("handle", entry.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := b.Ack(ctx, entry.ID); err != nil {
		b.logger.Error("failed to ack dead-lettered event",
			slog.String("handle", entry.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	b.logger.Error("event moved to dead-letter stream",
		slog.String("handle", entry.ID),
		slog.Int64("max_receives", b.maxReceives),
	)
}

// Ack removes the entry from the group's pending list and drops its
// receive counter.
func (b *RedisStreamBus) Ack(ctx context.Context, handle string) error {
	if err := b.client.Do(ctx,
		b.client.B().Xack().Key(b.stream).Group(b.group).Id(handle).Build(),
	).Error(); err != nil {
		return model.NewUnavailable("failed to ack event", err)
	}
	if err := b.client.Do(ctx,
		b.client.B().Hdel().Key(b.receivesKey()).Field(handle).Build(),
	).Error(); err != nil {
		b.logger.Warn("failed to drop receive counter",
			slog.String("handle", handle),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Available pings the bus with a short deadline.
func (b *RedisStreamBus) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return b.client.Do(ctx, b.client.B().Ping().Build()).Error() == nil
}

// DeadLetterCount reports the number of dead-lettered events, for
// operational visibility.
func (b *RedisStreamBus) DeadLetterCount(ctx context.Context) (int64, error) {
	n, err := b.client.Do(ctx, b.client.B().Xlen().Key(b.dlqStream()).Build()).AsInt64()
	if err != nil {
		return 0, model.NewUnavailable("failed to read dead-letter length", err)
	}
	return n, nil
}

var _ EventBus = (*RedisStreamBus)(nil)
