// Package handler exposes the JSON HTTP surface: post intake, timeline
// reads, graph mutations, profile reads, and the system endpoints.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/darshjasani/Pulse/internal/middleware"
	"github.com/darshjasani/Pulse/internal/model"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// postResponse is the wire shape of a post.
type postResponse struct {
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func toPostResponse(p *model.Post) postResponse {
	return postResponse{ID: p.ID, AuthorID: p.AuthorID, Content: p.Content, CreatedAt: p.CreatedAt}
}

func toPostResponses(posts []*model.Post) []postResponse {
	out := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, toPostResponse(p))
	}
	return out
}

// userResponse is the wire shape of a user profile. Email stays private.
type userResponse struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	FollowerCount  int       `json:"follower_count"`
	FollowingCount int       `json:"following_count"`
	IsCelebrity    bool      `json:"is_celebrity"`
	CreatedAt      time.Time `json:"created_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:             u.ID,
		Username:       u.Username,
		FollowerCount:  u.FollowerCount,
		FollowingCount: u.FollowingCount,
		IsCelebrity:    u.IsCelebrity,
		CreatedAt:      u.CreatedAt,
	}
}

func toUserResponses(users []*model.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return out
}

// userPageResponse is a paginated list of users.
type userPageResponse struct {
	Users   []userResponse `json:"users"`
	HasMore bool           `json:"has_more"`
}

// postPageResponse is a paginated list of posts.
type postPageResponse struct {
	Posts   []postResponse `json:"posts"`
	HasMore bool           `json:"has_more"`
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// pagination parses limit/offset query parameters with clamped defaults.
func pagination(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// pathID parses a numeric path parameter.
func pathID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewInvalidArgument("invalid id in path")
	}
	return id, nil
}

// viewer extracts the authenticated user id or writes a 401.
func viewer(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return 0, false
	}
	return userID, true
}
