// Package post implements post intake: validation, persistence, and the
// post_created event emission that feeds the fan-out pipeline.
package post

import (
	"context"
	"encoding/json"
	"log/slog"
	"unicode/utf8"

	"github.com/darshjasani/Pulse/internal/bus"
	"github.com/darshjasani/Pulse/internal/metrics"
	"github.com/darshjasani/Pulse/internal/model"
	"github.com/darshjasani/Pulse/internal/repository"
	"github.com/darshjasani/Pulse/internal/security"
)

// maxContentCodepoints is the post length ceiling, counted in Unicode
// codepoints after sanitization and trimming.
const maxContentCodepoints = 5000

// Service handles post creation and reads.
type Service struct {
	posts     repository.PostRepository
	users     repository.UserRepository
	eventBus  bus.EventBus
	sanitizer security.ContentSanitizer
	collector metrics.Collector
	logger    *slog.Logger
}

// NewService constructs a post Service.
func NewService(
	posts repository.PostRepository,
	users repository.UserRepository,
	eventBus bus.EventBus,
	sanitizer security.ContentSanitizer,
	collector metrics.Collector,
	logger *slog.Logger,
) *Service {
	return &Service{
		posts:     posts,
		users:     users,
		eventBus:  eventBus,
		sanitizer: sanitizer,
		collector: collector,
		logger:    logger,
	}
}

// Create validates and persists a post, then publishes a post_created
// event when the author is a regular (non-celebrity) user. A publish
// failure does not fail the call: the post is already durable, so the
// failure is logged at error level and counted instead. Such a post is
// not fanned out, and since its author is not a celebrity it is not
// pulled either; followers see it only through the database fallback
// scan, which runs while the cache is unavailable.
//
// The call never touches follower timelines, so its latency does not
// scale with the author's follower count.
func (s *Service) Create(ctx context.Context, authorID int64, content string) (*model.Post, error) {
	content = s.sanitizer.Sanitize(content)
	if content == "" {
		return nil, model.NewInvalidArgument("content must not be empty")
	}
	if utf8.RuneCountInString(content) > maxContentCodepoints {
		return nil, model.NewInvalidArgument("content exceeds 5000 characters")
	}

	author, err := s.users.GetByID(ctx, authorID)
	if err != nil {
		return nil, err
	}

	created, err := s.posts.Create(ctx, author.ID, content)
	if err != nil {
		return nil, err
	}

	if !author.IsCelebrity {
		s.publishCreated(ctx, created, author)
	}
	return created, nil
}

// publishCreated emits the post_created event, best-effort.
func (s *Service) publishCreated(ctx context.Context, p *model.Post, author *model.User) {
	event := model.NewPostCreatedEvent(p.ID, author.ID, author.IsCelebrity, p.CreatedAt)
	payload, err := json.Marshal(event)
	if err != nil {
		s.collector.RecordPublishFailure()
		s.logger.Error("failed to encode post_created event",
			slog.Int64("post_id", p.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.eventBus.Publish(ctx, payload); err != nil {
		s.collector.RecordPublishFailure()
		s.logger.Error("failed to publish post_created event; post is durable but not fanned out",
			slog.Int64("post_id", p.ID),
			slog.Int64("author_id", author.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.collector.RecordPublishSuccess()
}

// Get returns a single post by id.
func (s *Service) Get(ctx context.Context, postID int64) (*model.Post, error) {
	return s.posts.GetByID(ctx, postID)
}

// ListByAuthor returns a page of a single author's posts, newest first,
// straight from the durable store.
func (s *Service) ListByAuthor(ctx context.Context, authorID int64, limit, offset int) ([]*model.Post, error) {
	if _, err := s.users.GetByID(ctx, authorID); err != nil {
		return nil, err
	}
	return s.posts.ListByAuthor(ctx, authorID, limit, offset)
}
