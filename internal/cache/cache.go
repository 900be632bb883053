// Package cache implements the timeline cache: a per-user bounded sorted
// set of (post_id, score) pairs backed by Redis. Entries are derived state
// and can be rebuilt from the durable store at any time.
package cache

import (
	"context"

	"github.com/darshjasani/Pulse/internal/model"
)

// TimelineCache is the cache surface used by the fan-out worker, the
// timeline reader, and the follow service.
type TimelineCache interface {
	// Add inserts or updates one entry in ownerID's timeline, then trims
	// the timeline to the cap's highest-scored entries. Insert and trim
	// are atomic against concurrent Adds on the same owner.
	Add(ctx context.Context, ownerID, postID, score int64) error
	// AddMany is the bulk form of Add: the whole batch is inserted and
	// the timeline trimmed once, atomically.
	AddMany(ctx context.Context, ownerID int64, entries []model.TimelineEntry) error
	// FanOut writes one (postID, score) entry into every timeline in
	// ownerIDs using a single pipelined round-trip. Each owner's
	// insert-and-trim is individually atomic.
	FanOut(ctx context.Context, ownerIDs []int64, postID, score int64) error
	// Range returns up to limit entries of ownerID's timeline starting at
	// offset, highest score first. The second return value is false when
	// the owner has no cached timeline at all (a cache miss, as opposed
	// to a cached-but-empty timeline).
	Range(ctx context.Context, ownerID int64, offset, limit int) ([]model.TimelineEntry, bool, error)
	// Invalidate drops ownerID's entire timeline.
	Invalidate(ctx context.Context, ownerID int64) error
	// Available is a cheap liveness probe. It never panics or returns an
	// error; an unreachable cache is simply reported as false.
	Available(ctx context.Context) bool
	// RemovePostEverywhere removes postID from every cached timeline,
	// best-effort. The durable store remains the source of truth; callers
	// must not block request paths on this.
	RemovePostEverywhere(ctx context.Context, postID int64) error
}
