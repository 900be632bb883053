package model

import "time"

// Post is an immutable piece of content authored by a user.
type Post struct {
	ID        int64
	AuthorID  int64
	Content   string
	CreatedAt time.Time
}

// Score returns the post's timeline ordering key: created_at expressed as
// integer milliseconds since the epoch.
func (p Post) Score() int64 {
	return p.CreatedAt.UnixMilli()
}
