package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"

	"github.com/darshjasani/Pulse/internal/model"
)

// PostgresUserRepo is a UserRepository backed by PostgreSQL.
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo constructs a PostgresUserRepo.
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = "id, username, email, follower_count, following_count, is_celebrity, created_at, updated_at"

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	if err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.FollowerCount, &u.FollowingCount,
		&u.IsCelebrity, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser inserts a new user with zeroed counters. Username/email
// uniqueness is enforced by the schema; a violation surfaces as
// model.KindConflict.
func (r *PostgresUserRepo) CreateUser(ctx context.Context, username, email string) (*model.User, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		`INSERT INTO users (username, email) VALUES ($1, $2)
		 RETURNING `+userColumns,
		username, email,
	)
	u, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.NewConflict("username or email already registered")
		}
		return nil, model.NewInternal("failed to create user", err)
	}
	return u, nil
}

// GetByID returns the user with id, or model.KindNotFound if absent.
func (r *PostgresUserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, model.NewNotFound("user not found")
	}
	if err != nil {
		return nil, model.NewInternal("failed to find user by id", err)
	}
	return u, nil
}

// GetByUsername returns the user with the given username.
func (r *PostgresUserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, model.NewNotFound("user not found")
	}
	if err != nil {
		return nil, model.NewInternal("failed to find user by username", err)
	}
	return u, nil
}

// GetByEmail returns the user with the given email.
func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, model.NewNotFound("user not found")
	}
	if err != nil {
		return nil, model.NewInternal("failed to find user by email", err)
	}
	return u, nil
}

// CountUsers returns the total number of registered users.
func (r *PostgresUserRepo) CountUsers(ctx context.Context) (int64, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, model.NewInternal("failed to count users", err)
	}
	return n, nil
}

// CountCelebrities returns the number of users currently classified as
// celebrities.
func (r *PostgresUserRepo) CountCelebrities(ctx context.Context) (int64, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE is_celebrity`).Scan(&n); err != nil {
		return 0, model.NewInternal("failed to count celebrities", err)
	}
	return n, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation, via either lib/pq's typed error or a string fallback for
// drivers that don't expose it.
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "unique constraint")
}

var _ UserRepository = (*PostgresUserRepo)(nil)
