// Package repository defines the durable-store interfaces (spec §4.A) and
// their PostgreSQL implementations. Every operation is parameterized SQL;
// none of it builds query strings from user input.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/darshjasani/Pulse/internal/model"
)

// UserRepository is the durable store's user-facing surface.
type UserRepository interface {
	CreateUser(ctx context.Context, username, email string) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	CountUsers(ctx context.Context) (int64, error)
	CountCelebrities(ctx context.Context) (int64, error)
}

// PostRepository is the durable store's post-facing surface.
type PostRepository interface {
	// Create inserts the post and returns it with ID and CreatedAt
	// populated atomically.
	Create(ctx context.Context, authorID int64, content string) (*model.Post, error)
	GetByID(ctx context.Context, id int64) (*model.Post, error)
	ListByAuthor(ctx context.Context, authorID int64, limit, offset int) ([]*model.Post, error)
	// RecentByAuthors returns posts by any of authorIDs created at or after
	// since, newest first, capped at limit. Used for the celebrity pull
	// path and the database fallback scan.
	RecentByAuthors(ctx context.Context, authorIDs []int64, since time.Time, limit int) ([]*model.Post, error)
	// Hydrate batch-reads posts by id; order is unspecified, callers
	// reorder by their own score/ordering key.
	Hydrate(ctx context.Context, postIDs []int64) ([]*model.Post, error)
	CountPosts(ctx context.Context) (int64, error)
}

// FollowerStream is a lazy, unbounded-safe enumeration of follower user
// ids, backed by an open *sql.Rows. Callers must Close it.
type FollowerStream interface {
	Next() bool
	UserID() int64
	Err() error
	Close() error
}

// FollowRepository is the durable store's follow-edge-facing surface.
type FollowRepository interface {
	// AddFollow inserts the edge, increments both sides' counters, and
	// re-evaluates following's is_celebrity flag against threshold, all in
	// one transaction. Returns model.KindConflict on a duplicate edge and
	// model.KindInvalidArgument on self-follow.
	AddFollow(ctx context.Context, followerID, followingID int64, celebrityThreshold int) error
	// RemoveFollow is symmetric; returns model.KindNotFound if the edge
	// does not exist.
	RemoveFollow(ctx context.Context, followerID, followingID int64, celebrityThreshold int) error
	// FollowersOf enumerates follower ids of userID lazily.
	FollowersOf(ctx context.Context, userID int64) (FollowerStream, error)
	// FollowedCelebritiesOf returns the ids of users userID follows that
	// are currently celebrities.
	FollowedCelebritiesOf(ctx context.Context, userID int64) ([]int64, error)
	// FollowedUserIDs returns every user userID follows, celebrity or not.
	FollowedUserIDs(ctx context.Context, userID int64) ([]int64, error)
	ListFollowers(ctx context.Context, userID int64, limit, offset int) ([]*model.User, error)
	ListFollowing(ctx context.Context, userID int64, limit, offset int) ([]*model.User, error)
	CountFollows(ctx context.Context) (int64, error)
}

// TxBeginner is implemented by *sql.DB; repositories that need ad-hoc
// transactions accept this instead of a concrete *sql.DB for testability.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// queryTimeout bounds every non-streaming store call. FollowersOf is
// exempt: its row cursor outlives the initial query by design.
const queryTimeout = 5 * time.Second

func withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, queryTimeout)
}
