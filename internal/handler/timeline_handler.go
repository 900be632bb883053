package handler

import (
	"context"
	"net/http"

	"github.com/darshjasani/Pulse/internal/middleware"
	"github.com/darshjasani/Pulse/internal/timeline"
)

// TimelineServiceInterface is the reader surface the handler needs.
type TimelineServiceInterface interface {
	Get(ctx context.Context, viewerID int64, limit, offset int) (*timeline.Timeline, error)
}

// TimelineHandler serves assembled timelines.
type TimelineHandler struct {
	service TimelineServiceInterface
}

// NewTimelineHandler constructs a TimelineHandler.
func NewTimelineHandler(service TimelineServiceInterface) *TimelineHandler {
	return &TimelineHandler{service: service}
}

type timelineResponse struct {
	Posts   []postResponse `json:"posts"`
	Source  string         `json:"source"`
	HasMore bool           `json:"has_more"`
}

// GetTimeline returns the authenticated user's timeline page, annotated
// with the source it was assembled from.
// GET /timeline?limit=&offset=
func (h *TimelineHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := viewer(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)

	tl, err := h.service.Get(r.Context(), viewerID, limit, offset)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, timelineResponse{
		Posts:   toPostResponses(tl.Posts),
		Source:  string(tl.Source),
		HasMore: tl.HasMore,
	})
}
