package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/darshjasani/Pulse/internal/middleware"
	"github.com/darshjasani/Pulse/internal/model"
)

// FollowServiceInterface is the graph-mutation surface the handler needs.
type FollowServiceInterface interface {
	Follow(ctx context.Context, actorID, targetID int64) error
	Unfollow(ctx context.Context, actorID, targetID int64) error
	Followers(ctx context.Context, userID int64, limit, offset int) ([]*model.User, error)
	Following(ctx context.Context, userID int64, limit, offset int) ([]*model.User, error)
}

// UserLookup resolves user profiles; the user repository satisfies it.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

// UserHandler serves follow/unfollow and profile reads.
type UserHandler struct {
	follows FollowServiceInterface
	users   UserLookup
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(follows FollowServiceInterface, users UserLookup) *UserHandler {
	return &UserHandler{follows: follows, users: users}
}

// Follow creates a follow edge from the authenticated user.
// POST /users/follow/{user_id} -> 204, 409 on duplicate, 400 on self-follow
func (h *UserHandler) Follow(w http.ResponseWriter, r *http.Request) {
	actorID, ok := viewer(w, r)
	if !ok {
		return
	}
	targetID, err := pathID(chi.URLParam(r, "user_id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	if err := h.follows.Follow(r.Context(), actorID, targetID); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unfollow removes a follow edge from the authenticated user.
// DELETE /users/follow/{user_id} -> 204, 404 on missing edge
func (h *UserHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	actorID, ok := viewer(w, r)
	if !ok {
		return
	}
	targetID, err := pathID(chi.URLParam(r, "user_id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	if err := h.follows.Unfollow(r.Context(), actorID, targetID); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFollowers returns a page of a user's followers.
// GET /users/{user_id}/followers
func (h *UserHandler) ListFollowers(w http.ResponseWriter, r *http.Request) {
	h.listGraphPage(w, r, h.follows.Followers)
}

// ListFollowing returns a page of the users a user follows.
// GET /users/{user_id}/following
func (h *UserHandler) ListFollowing(w http.ResponseWriter, r *http.Request) {
	h.listGraphPage(w, r, h.follows.Following)
}

func (h *UserHandler) listGraphPage(
	w http.ResponseWriter,
	r *http.Request,
	list func(ctx context.Context, userID int64, limit, offset int) ([]*model.User, error),
) {
	userID, err := pathID(chi.URLParam(r, "user_id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	limit, offset := pagination(r)

	users, err := list(r.Context(), userID, limit, offset)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userPageResponse{
		Users:   toUserResponses(users),
		HasMore: len(users) == limit,
	})
}

// GetProfile returns a user profile. The path segment is tried as a
// numeric id first and falls back to a username lookup, so both
// /users/42 and /users/alice resolve.
// GET /users/{user_id}
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, "user_id")

	var (
		u   *model.User
		err error
	)
	if id, parseErr := strconv.ParseInt(param, 10, 64); parseErr == nil {
		u, err = h.users.GetByID(r.Context(), id)
	} else {
		u, err = h.users.GetByUsername(r.Context(), param)
	}
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}
