package model

import "time"

// TimelineEntry is one (post_id, score) pair inside an owner's cached
// timeline. Score is created_at expressed as integer milliseconds.
type TimelineEntry struct {
	PostID int64
	Score  int64
}

// TimelineSource names where a timeline read was assembled from, surfaced
// to clients so they can reason about staleness.
type TimelineSource string

const (
	SourceCache         TimelineSource = "cache"
	SourceCachePlusPull TimelineSource = "cache+pull"
	SourceDatabase      TimelineSource = "database"
)

// PostCreatedEvent is the at-least-once event published by Post Intake for
// regular (non-celebrity) authors.
type PostCreatedEvent struct {
	PostID            int64     `json:"post_id"`
	AuthorID          int64     `json:"author_id"`
	IsCelebrityAtEmit bool      `json:"is_celebrity"`
	CreatedAt         time.Time `json:"-"`
	Timestamp         float64   `json:"timestamp"`
	EventType         string    `json:"event_type"`
}

// NewPostCreatedEvent builds the wire payload for a post_created event,
// matching the JSON shape in the spec's event payload section.
func NewPostCreatedEvent(postID, authorID int64, isCelebrity bool, createdAt time.Time) PostCreatedEvent {
	return PostCreatedEvent{
		PostID:            postID,
		AuthorID:          authorID,
		IsCelebrityAtEmit: isCelebrity,
		CreatedAt:         createdAt,
		Timestamp:         float64(createdAt.UnixMilli()) / 1000.0,
		EventType:         "post_created",
	}
}
