// Package follow applies follow/unfollow edges and keeps the follower's
// cached timeline coherent with the new graph.
package follow

import (
	"context"
	"log/slog"

	"github.com/darshjasani/Pulse/internal/cache"
	"github.com/darshjasani/Pulse/internal/model"
	"github.com/darshjasani/Pulse/internal/repository"
)

// Service applies graph mutations and serves follower/following pages.
type Service struct {
	follows   repository.FollowRepository
	users     repository.UserRepository
	timelines cache.TimelineCache
	threshold int
	logger    *slog.Logger
}

// NewService constructs a follow Service. threshold is the celebrity
// follower-count threshold applied inside the edge transactions.
func NewService(
	follows repository.FollowRepository,
	users repository.UserRepository,
	timelines cache.TimelineCache,
	threshold int,
	logger *slog.Logger,
) *Service {
	return &Service{
		follows:   follows,
		users:     users,
		timelines: timelines,
		threshold: threshold,
		logger:    logger,
	}
}

// Follow inserts the edge (counters and celebrity flag update in the
// same transaction), then invalidates the actor's cached timeline.
// Nothing rebuilds the dropped timeline: until fan-out writes new
// entries, the actor's reads get an empty push-timeline plus the
// celebrity pull. Invalidation failure is logged, not surfaced; the
// actor's old cached timeline then stays in place.
func (s *Service) Follow(ctx context.Context, actorID, targetID int64) error {
	if err := s.follows.AddFollow(ctx, actorID, targetID, s.threshold); err != nil {
		return err
	}
	s.invalidate(ctx, actorID)
	return nil
}

// Unfollow is symmetric to Follow.
func (s *Service) Unfollow(ctx context.Context, actorID, targetID int64) error {
	if err := s.follows.RemoveFollow(ctx, actorID, targetID, s.threshold); err != nil {
		return err
	}
	s.invalidate(ctx, actorID)
	return nil
}

func (s *Service) invalidate(ctx context.Context, actorID int64) {
	if err := s.timelines.Invalidate(ctx, actorID); err != nil {
		s.logger.Warn("failed to invalidate timeline after graph change",
			slog.Int64("user_id", actorID),
			slog.String("error", err.Error()),
		)
	}
}

// Followers returns a page of userID's followers.
func (s *Service) Followers(ctx context.Context, userID int64, limit, offset int) ([]*model.User, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.follows.ListFollowers(ctx, userID, limit, offset)
}

// Following returns a page of users userID follows.
func (s *Service) Following(ctx context.Context, userID int64, limit, offset int) ([]*model.User, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.follows.ListFollowing(ctx, userID, limit, offset)
}
