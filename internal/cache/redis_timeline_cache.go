package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/darshjasani/Pulse/internal/model"
)

// timelineKeyPrefix namespaces Redis keys holding cached timelines.
// Keys are formatted as "timeline:{user_id}".
const timelineKeyPrefix = "timeline:"

// opTimeout bounds every cache round-trip, including the Available
// liveness ping.
const opTimeout = 2 * time.Second

// scanBatch is the COUNT hint for the RemovePostEverywhere key scan.
const scanBatch = 100

// addTrimScript inserts the given (score, member) pairs into a timeline
// sorted set and trims it to the cap's highest-scored entries, as one
// atomic server-side operation. Redis removes rank 0 (lowest score) first
// and, on equal scores, the lexically smallest member first; members are
// zero-padded post ids, so lexical order is numeric order and ties evict
// the lower post_id, matching the eviction invariant.
var addTrimScript = rueidis.NewLuaScript(`
local key = KEYS[1]
local cap = tonumber(ARGV[1])
for i = 2, #ARGV, 2 do
  redis.call('ZADD', key, ARGV[i], ARGV[i+1])
end
redis.call('ZREMRANGEBYRANK', key, 0, -(cap + 1))
return redis.call('ZCARD', key)
`)

// RedisTimelineCache is a TimelineCache backed by a Redis sorted set per
// owner, scored by created_at in integer milliseconds.
type RedisTimelineCache struct {
	client rueidis.Client
	cap    int
	logger *slog.Logger
}

// NewRedisTimelineCache constructs a RedisTimelineCache. cap is the
// maximum number of entries retained per timeline; values below 1 fall
// back to the default of 1000.
func NewRedisTimelineCache(client rueidis.Client, cap int, logger *slog.Logger) *RedisTimelineCache {
	if cap < 1 {
		cap = 1000
	}
	return &RedisTimelineCache{client: client, cap: cap, logger: logger}
}

func timelineKey(ownerID int64) string {
	return timelineKeyPrefix + strconv.FormatInt(ownerID, 10)
}

// member encodes a post id as a fixed-width decimal string so that
// lexical comparison of members equals numeric comparison of ids.
func member(postID int64) string {
	return fmt.Sprintf("%019d", postID)
}

func parseMember(m string) (int64, error) {
	return strconv.ParseInt(m, 10, 64)
}

// Add inserts one entry and trims, atomically via the Lua script.
func (c *RedisTimelineCache) Add(ctx context.Context, ownerID, postID, score int64) error {
	return c.AddMany(ctx, ownerID, []model.TimelineEntry{{PostID: postID, Score: score}})
}

// AddMany inserts the batch and trims once, atomically via the Lua script.
func (c *RedisTimelineCache) AddMany(ctx context.Context, ownerID int64, entries []model.TimelineEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	args := make([]string, 0, 1+2*len(entries))
	args = append(args, strconv.Itoa(c.cap))
	for _, e := range entries {
		args = append(args, strconv.FormatInt(e.Score, 10), member(e.PostID))
	}
	if err := addTrimScript.Exec(ctx, c.client, []string{timelineKey(ownerID)}, args).Error(); err != nil {
		return model.NewUnavailable("timeline cache write failed", err)
	}
	return nil
}

// FanOut writes the same entry into every owner's timeline in a single
// pipelined round-trip. A failure on any owner fails the whole call so
// the fan-out worker nacks and the event is redelivered; repeating the
// write is a no-op by entry uniqueness.
func (c *RedisTimelineCache) FanOut(ctx context.Context, ownerIDs []int64, postID, score int64) error {
	if len(ownerIDs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	scoreArg := strconv.FormatInt(score, 10)
	capArg := strconv.Itoa(c.cap)
	memberArg := member(postID)

	execs := make([]rueidis.LuaExec, len(ownerIDs))
	for i, ownerID := range ownerIDs {
		execs[i] = rueidis.LuaExec{
			Keys: []string{timelineKey(ownerID)},
			Args: []string{capArg, scoreArg, memberArg},
		}
	}
	for _, resp := range addTrimScript.ExecMulti(ctx, c.client, execs...) {
		if err := resp.Error(); err != nil {
			return model.NewUnavailable("timeline fan-out write failed", err)
		}
	}
	return nil
}

// Range reads up to limit entries starting at offset, highest score
// first. Returns ok=false when the owner has no cached timeline; the
// timeline reader serves that as an empty push-timeline, not as a
// reason to fall back to the durable store.
func (c *RedisTimelineCache) Range(ctx context.Context, ownerID int64, offset, limit int) ([]model.TimelineEntry, bool, error) {
	if limit <= 0 {
		return nil, true, nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := timelineKey(ownerID)

	exists, err := c.client.Do(ctx, c.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return nil, false, model.NewUnavailable("timeline cache read failed", err)
	}
	if exists == 0 {
		return nil, false, nil
	}

	scores, err := c.client.Do(ctx,
		c.client.B().Zrevrange().Key(key).
			Start(int64(offset)).Stop(int64(offset+limit-1)).
			Withscores().Build(),
	).AsZScores()
	if err != nil {
		return nil, false, model.NewUnavailable("timeline cache read failed", err)
	}

	entries := make([]model.TimelineEntry, 0, len(scores))
	for _, zs := range scores {
		postID, err := parseMember(zs.Member)
		if err != nil {
			// A foreign member in the set is unexpected; skip it rather
			// than fail the whole read.
			c.logger.Warn("skipping unparseable timeline member",
				slog.Int64("owner_id", ownerID),
				slog.String("member", zs.Member),
			)
			continue
		}
		entries = append(entries, model.TimelineEntry{PostID: postID, Score: int64(zs.Score)})
	}
	return entries, true, nil
}

// Invalidate drops ownerID's entire timeline.
func (c *RedisTimelineCache) Invalidate(ctx context.Context, ownerID int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.Do(ctx, c.client.B().Del().Key(timelineKey(ownerID)).Build()).Error(); err != nil {
		return model.NewUnavailable("timeline cache invalidate failed", err)
	}
	return nil
}

// Available pings the cache with a short deadline. Never returns an
// error; an unreachable cache is reported as false.
func (c *RedisTimelineCache) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error() == nil
}

// RemovePostEverywhere scans all timeline keys and removes postID from
// each, best-effort. Intended to run off the request path; the durable
// store remains the source of truth while the scan is in flight.
func (c *RedisTimelineCache) RemovePostEverywhere(ctx context.Context, postID int64) error {
	m := member(postID)
	var cursor uint64
	for {
		entry, err := c.client.Do(ctx,
			c.client.B().Scan().Cursor(cursor).Match(timelineKeyPrefix+"*").Count(scanBatch).Build(),
		).AsScanEntry()
		if err != nil {
			return model.NewUnavailable("timeline scan failed", err)
		}
		for _, key := range entry.Elements {
			if err := c.client.Do(ctx, c.client.B().Zrem().Key(key).Member(m).Build()).Error(); err != nil {
				c.logger.Warn("failed to remove post from timeline",
					slog.Int64("post_id", postID),
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
		}
		cursor = entry.Cursor
		if cursor == 0 {
			return nil
		}
	}
}

var _ TimelineCache = (*RedisTimelineCache)(nil)
