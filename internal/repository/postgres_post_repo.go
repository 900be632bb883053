package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/darshjasani/Pulse/internal/model"
)

// PostgresPostRepo is a PostRepository backed by PostgreSQL.
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo constructs a PostgresPostRepo.
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

func scanPost(row interface{ Scan(...any) error }) (*model.Post, error) {
	p := &model.Post{}
	if err := row.Scan(&p.ID, &p.AuthorID, &p.Content, &p.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// Create inserts the post and returns it with id and created_at populated
// atomically by the database.
func (r *PostgresPostRepo) Create(ctx context.Context, authorID int64, content string) (*model.Post, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		`INSERT INTO posts (author_id, content) VALUES ($1, $2)
		 RETURNING id, author_id, content, created_at`,
		authorID, content,
	)
	p, err := scanPost(row)
	if err != nil {
		return nil, model.NewInternal("failed to create post", err)
	}
	return p, nil
}

// GetByID returns the post with id, or model.KindNotFound if absent.
func (r *PostgresPostRepo) GetByID(ctx context.Context, id int64) (*model.Post, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		`SELECT id, author_id, content, created_at FROM posts WHERE id = $1`, id)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, model.NewNotFound("post not found")
	}
	if err != nil {
		return nil, model.NewInternal("failed to find post by id", err)
	}
	return p, nil
}

// ListByAuthor returns a single author's posts, newest first.
func (r *PostgresPostRepo) ListByAuthor(ctx context.Context, authorID int64, limit, offset int) ([]*model.Post, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, author_id, content, created_at FROM posts
		 WHERE author_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		authorID, limit, offset,
	)
	if err != nil {
		return nil, model.NewInternal("failed to list posts by author", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

// RecentByAuthors returns posts by any of authorIDs created at or after
// since, newest first, capped at limit. Used for the celebrity pull path
// and the cache-unavailable fallback scan.
func (r *PostgresPostRepo) RecentByAuthors(ctx context.Context, authorIDs []int64, since time.Time, limit int) ([]*model.Post, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	if len(authorIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, author_id, content, created_at FROM posts
		 WHERE author_id = ANY($1) AND created_at >= $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3`,
		pq.Array(authorIDs), since, limit,
	)
	if err != nil {
		return nil, model.NewInternal("failed to query recent posts by authors", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

// Hydrate batch-reads posts by id. Order is unspecified; callers reorder.
func (r *PostgresPostRepo) Hydrate(ctx context.Context, postIDs []int64) ([]*model.Post, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	if len(postIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, author_id, content, created_at FROM posts WHERE id = ANY($1)`,
		pq.Array(postIDs),
	)
	if err != nil {
		return nil, model.NewInternal("failed to hydrate posts", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

// CountPosts returns the total number of posts ever created.
func (r *PostgresPostRepo) CountPosts(ctx context.Context) (int64, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM posts`).Scan(&n); err != nil {
		return 0, model.NewInternal("failed to count posts", err)
	}
	return n, nil
}

func collectPosts(rows *sql.Rows) ([]*model.Post, error) {
	var posts []*model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, model.NewInternal("failed to scan post row", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewInternal("failed while iterating post rows", err)
	}
	return posts, nil
}

var _ PostRepository = (*PostgresPostRepo)(nil)
