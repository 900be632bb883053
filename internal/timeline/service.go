// Package timeline assembles personalized timelines from the push
// (cached) and pull (celebrity) paths, with a durable-store fallback
// when the cache is degraded.
package timeline

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/darshjasani/Pulse/internal/cache"
	"github.com/darshjasani/Pulse/internal/metrics"
	"github.com/darshjasani/Pulse/internal/model"
	"github.com/darshjasani/Pulse/internal/repository"
)

// Timeline is one assembled page of a viewer's feed.
type Timeline struct {
	Posts   []*model.Post
	Source  model.TimelineSource
	HasMore bool
}

// Options tunes the pull path and the fallback scan.
type Options struct {
	// PullWindow is how far back the celebrity pull and the fallback
	// scan look. Older celebrity posts are invisible to a viewer whose
	// cache was never populated; widen with care.
	PullWindow time.Duration
	// PullLimit caps how many celebrity posts are pulled per read.
	PullLimit int
}

// Service reads timelines.
type Service struct {
	timelines cache.TimelineCache
	posts     repository.PostRepository
	follows   repository.FollowRepository
	collector metrics.Collector
	logger    *slog.Logger
	opts      Options
}

// NewService constructs a timeline Service. Zero option fields fall back
// to a 24h window and a pull limit of 20.
func NewService(
	timelines cache.TimelineCache,
	posts repository.PostRepository,
	follows repository.FollowRepository,
	collector metrics.Collector,
	logger *slog.Logger,
	opts Options,
) *Service {
	if opts.PullWindow <= 0 {
		opts.PullWindow = 24 * time.Hour
	}
	if opts.PullLimit <= 0 {
		opts.PullLimit = 20
	}
	return &Service{
		timelines: timelines,
		posts:     posts,
		follows:   follows,
		collector: collector,
		logger:    logger,
		opts:      opts,
	}
}

// Get assembles the viewer's timeline page.
//
// The cached push-timeline is merged with a fresh pull of posts from
// followed celebrities. Only an unreachable cache (or a failed cache
// read, which is swallowed per the propagation policy) sends the whole
// page to the durable-store scan; a viewer with no cached timeline set
// simply has an empty push-timeline and still gets the celebrity merge
// — a brand-new follower of a celebrity has never had anything fanned
// into their cache, and their timeline comes entirely from the pull
// path. Durable-store errors are surfaced.
func (s *Service) Get(ctx context.Context, viewerID int64, limit, offset int) (*Timeline, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	if !s.timelines.Available(ctx) {
		s.collector.RecordCacheMiss()
		return s.fromDatabase(ctx, viewerID, limit, offset)
	}

	entries, ok := s.readCache(ctx, viewerID, limit, offset)
	if !ok {
		s.collector.RecordCacheMiss()
		return s.fromDatabase(ctx, viewerID, limit, offset)
	}
	s.collector.RecordCacheHit()

	celebrities, err := s.follows.FollowedCelebritiesOf(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	if len(celebrities) == 0 {
		posts, err := s.hydrate(ctx, entries)
		if err != nil {
			return nil, err
		}
		posts = page(posts, limit, offset)
		return &Timeline{Posts: posts, Source: model.SourceCache, HasMore: len(posts) == limit}, nil
	}

	pulled, err := s.posts.RecentByAuthors(ctx, celebrities, time.Now().Add(-s.opts.PullWindow), s.opts.PullLimit)
	if err != nil {
		return nil, err
	}

	pushed, err := s.hydrate(ctx, entries)
	if err != nil {
		return nil, err
	}

	merged := mergeByScore(pushed, pulled)
	merged = page(merged, limit, offset)
	return &Timeline{Posts: merged, Source: model.SourceCachePlusPull, HasMore: len(merged) == limit}, nil
}

// readCache reads the viewer's cached entries. A read failure reports
// ok=false so the caller falls back to the store; a viewer with no
// cached timeline set is just an empty push-timeline, not a failure.
func (s *Service) readCache(ctx context.Context, viewerID int64, limit, offset int) ([]model.TimelineEntry, bool) {
	entries, exists, err := s.timelines.Range(ctx, viewerID, 0, offset+limit)
	if err != nil {
		s.logger.Warn("timeline cache read failed, falling back to database",
			slog.Int64("viewer_id", viewerID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if !exists {
		return nil, true
	}
	return entries, true
}

// fromDatabase serves the page entirely from the durable store: recent
// posts by everyone the viewer follows, plus the viewer's own.
func (s *Service) fromDatabase(ctx context.Context, viewerID int64, limit, offset int) (*Timeline, error) {
	authorIDs, err := s.follows.FollowedUserIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	authorIDs = append(authorIDs, viewerID)

	posts, err := s.posts.RecentByAuthors(ctx, authorIDs, time.Now().Add(-s.opts.PullWindow), offset+limit)
	if err != nil {
		return nil, err
	}
	posts = page(posts, limit, offset)
	return &Timeline{Posts: posts, Source: model.SourceDatabase, HasMore: len(posts) == limit}, nil
}

// hydrate batch-reads the cached entries' posts and restores score
// order. Entries whose post no longer exists are dropped.
func (s *Service) hydrate(ctx context.Context, entries []model.TimelineEntry) ([]*model.Post, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.PostID
	}
	posts, err := s.posts.Hydrate(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*model.Post, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
	}
	ordered := make([]*model.Post, 0, len(entries))
	for _, e := range entries {
		if p, ok := byID[e.PostID]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered, nil
}

// mergeByScore combines both paths, dedups by post id, and sorts by
// score descending with the higher post id first on ties (the lower id
// sorts last).
func mergeByScore(pushed, pulled []*model.Post) []*model.Post {
	seen := make(map[int64]bool, len(pushed)+len(pulled))
	merged := make([]*model.Post, 0, len(pushed)+len(pulled))
	for _, p := range append(pushed, pulled...) {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		merged = append(merged, p)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		si, sj := merged[i].Score(), merged[j].Score()
		if si != sj {
			return si > sj
		}
		return merged[i].ID > merged[j].ID
	})
	return merged
}

// page applies offset/limit after merging.
func page(posts []*model.Post, limit, offset int) []*model.Post {
	if offset >= len(posts) {
		return nil
	}
	posts = posts[offset:]
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts
}
