package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/darshjasani/Pulse/internal/middleware"
	"github.com/darshjasani/Pulse/internal/model"
)

// PostServiceInterface is the post-intake surface the handler needs.
type PostServiceInterface interface {
	Create(ctx context.Context, authorID int64, content string) (*model.Post, error)
	Get(ctx context.Context, postID int64) (*model.Post, error)
	ListByAuthor(ctx context.Context, authorID int64, limit, offset int) ([]*model.Post, error)
}

// PostHandler serves post intake and post reads.
type PostHandler struct {
	service PostServiceInterface
}

// NewPostHandler constructs a PostHandler.
func NewPostHandler(service PostServiceInterface) *PostHandler {
	return &PostHandler{service: service}
}

type createPostRequest struct {
	Content string `json:"content"`
}

// CreatePost persists a post for the authenticated user.
// POST /posts
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	authorID, ok := viewer(w, r)
	if !ok {
		return
	}

	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, r, model.NewInvalidArgument("request body must be valid JSON"))
		return
	}

	created, err := h.service.Create(r.Context(), authorID, req.Content)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPostResponse(created))
}

// GetPost returns a single post.
// GET /posts/{post_id}
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	postID, err := pathID(chi.URLParam(r, "post_id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	p, err := h.service.Get(r.Context(), postID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(p))
}

// ListUserPosts returns a page of one author's posts, newest first.
// GET /users/{user_id}/posts
func (h *PostHandler) ListUserPosts(w http.ResponseWriter, r *http.Request) {
	authorID, err := pathID(chi.URLParam(r, "user_id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	limit, offset := pagination(r)

	posts, err := h.service.ListByAuthor(r.Context(), authorID, limit, offset)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, postPageResponse{
		Posts:   toPostResponses(posts),
		HasMore: len(posts) == limit,
	})
}
