package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/darshjasani/Pulse/internal/classify"
	"github.com/darshjasani/Pulse/internal/model"
)

// PostgresFollowRepo is a FollowRepository backed by PostgreSQL.
type PostgresFollowRepo struct {
	db *sql.DB
}

// NewPostgresFollowRepo constructs a PostgresFollowRepo.
func NewPostgresFollowRepo(db *sql.DB) *PostgresFollowRepo {
	return &PostgresFollowRepo{db: db}
}

// AddFollow inserts the edge, updates both sides' denormalized counters,
// and re-evaluates following's is_celebrity flag, all within one
// transaction — so a reader can never observe a follower_count bump
// without the matching is_celebrity value.
func (r *PostgresFollowRepo) AddFollow(ctx context.Context, followerID, followingID int64, celebrityThreshold int) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	if followerID == followingID {
		return model.NewInvalidArgument("cannot follow yourself")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.NewInternal("failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO follows (follower_id, following_id) VALUES ($1, $2)`,
		followerID, followingID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.NewConflict("already following this user")
		}
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return model.NewNotFound("user not found")
		}
		return model.NewInternal("failed to insert follow edge", err)
	}

	// Verify both endpoints exist; a foreign-key violation surfaces as
	// not-found rather than a bare internal error.
	var followerCount int
	err = tx.QueryRowContext(ctx,
		`UPDATE users SET follower_count = follower_count + 1, updated_at = now()
		 WHERE id = $1 RETURNING follower_count`,
		followingID,
	).Scan(&followerCount)
	if err == sql.ErrNoRows {
		return model.NewNotFound("user to follow not found")
	}
	if err != nil {
		return model.NewInternal("failed to increment follower_count", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET following_count = following_count + 1, updated_at = now() WHERE id = $1`,
		followerID,
	)
	if err != nil {
		return model.NewInternal("failed to increment following_count", err)
	}

	isCelebrity := classify.IsCelebrity(followerCount, celebrityThreshold)
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET is_celebrity = $1 WHERE id = $2`,
		isCelebrity, followingID,
	); err != nil {
		return model.NewInternal("failed to update is_celebrity", err)
	}

	if err := tx.Commit(); err != nil {
		return model.NewInternal("failed to commit follow transaction", err)
	}
	return nil
}

// RemoveFollow is symmetric to AddFollow: deletes the edge, decrements
// counters, and re-evaluates is_celebrity in the same transaction.
func (r *PostgresFollowRepo) RemoveFollow(ctx context.Context, followerID, followingID int64, celebrityThreshold int) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.NewInternal("failed to begin transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = $1 AND following_id = $2`,
		followerID, followingID,
	)
	if err != nil {
		return model.NewInternal("failed to delete follow edge", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return model.NewInternal("failed to read rows affected", err)
	}
	if affected == 0 {
		return model.NewNotFound("not following this user")
	}

	var followerCount int
	err = tx.QueryRowContext(ctx,
		`UPDATE users SET follower_count = GREATEST(follower_count - 1, 0), updated_at = now()
		 WHERE id = $1 RETURNING follower_count`,
		followingID,
	).Scan(&followerCount)
	if err != nil && err != sql.ErrNoRows {
		return model.NewInternal("failed to decrement follower_count", err)
	}
	if err == nil {
		isCelebrity := classify.IsCelebrity(followerCount, celebrityThreshold)
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET is_celebrity = $1 WHERE id = $2`,
			isCelebrity, followingID,
		); err != nil {
			return model.NewInternal("failed to update is_celebrity", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET following_count = GREATEST(following_count - 1, 0), updated_at = now() WHERE id = $1`,
		followerID,
	); err != nil {
		return model.NewInternal("failed to decrement following_count", err)
	}

	if err := tx.Commit(); err != nil {
		return model.NewInternal("failed to commit unfollow transaction", err)
	}
	return nil
}

// rowsFollowerStream adapts *sql.Rows to the FollowerStream interface.
type rowsFollowerStream struct {
	rows    *sql.Rows
	current int64
	err     error
}

func (s *rowsFollowerStream) Next() bool {
	if !s.rows.Next() {
		return false
	}
	if err := s.rows.Scan(&s.current); err != nil {
		s.err = err
		return false
	}
	return true
}

func (s *rowsFollowerStream) UserID() int64 { return s.current }
func (s *rowsFollowerStream) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.rows.Err()
}
func (s *rowsFollowerStream) Close() error { return s.rows.Close() }

// FollowersOf lazily enumerates followerIDs of userID, ordering unspecified
// but stable within the call (a single ORDER BY on the primary key).
func (r *PostgresFollowRepo) FollowersOf(ctx context.Context, userID int64) (FollowerStream, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT follower_id FROM follows WHERE following_id = $1 ORDER BY follower_id`,
		userID,
	)
	if err != nil {
		return nil, model.NewInternal("failed to query followers", err)
	}
	return &rowsFollowerStream{rows: rows}, nil
}

// FollowedCelebritiesOf returns ids of users userID follows whose
// is_celebrity flag is currently set.
func (r *PostgresFollowRepo) FollowedCelebritiesOf(ctx context.Context, userID int64) ([]int64, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id FROM follows f
		 JOIN users u ON u.id = f.following_id
		 WHERE f.follower_id = $1 AND u.is_celebrity`,
		userID,
	)
	if err != nil {
		return nil, model.NewInternal("failed to query followed celebrities", err)
	}
	defer rows.Close()
	return collectInt64s(rows)
}

// FollowedUserIDs returns every user userID follows.
func (r *PostgresFollowRepo) FollowedUserIDs(ctx context.Context, userID int64) ([]int64, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT following_id FROM follows WHERE follower_id = $1`,
		userID,
	)
	if err != nil {
		return nil, model.NewInternal("failed to query followed users", err)
	}
	defer rows.Close()
	return collectInt64s(rows)
}

// ListFollowers returns a page of follower profiles, for the
// GET /users/{user_id}/followers endpoint.
func (r *PostgresFollowRepo) ListFollowers(ctx context.Context, userID int64, limit, offset int) ([]*model.User, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT u.`+userColumns+` FROM users u
		 JOIN follows f ON f.follower_id = u.id
		 WHERE f.following_id = $1
		 ORDER BY f.created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, model.NewInternal("failed to list followers", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

// ListFollowing returns a page of followee profiles, for the
// GET /users/{user_id}/following endpoint.
func (r *PostgresFollowRepo) ListFollowing(ctx context.Context, userID int64, limit, offset int) ([]*model.User, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT u.`+userColumns+` FROM users u
		 JOIN follows f ON f.following_id = u.id
		 WHERE f.follower_id = $1
		 ORDER BY f.created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, model.NewInternal("failed to list following", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

// CountFollows returns the total number of follow edges, for /system/metrics.
func (r *PostgresFollowRepo) CountFollows(ctx context.Context) (int64, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM follows`).Scan(&n); err != nil {
		return 0, model.NewInternal("failed to count follows", err)
	}
	return n, nil
}

func collectInt64s(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, model.NewInternal("failed to scan id row", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewInternal("failed while iterating id rows", err)
	}
	return ids, nil
}

func collectUsers(rows *sql.Rows) ([]*model.User, error) {
	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, model.NewInternal("failed to scan user row", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewInternal("failed while iterating user rows", err)
	}
	return users, nil
}

var (
	_ FollowRepository = (*PostgresFollowRepo)(nil)
	_                  = pq.Error{} // keep lib/pq imported for isUniqueViolation's type assertion
)
