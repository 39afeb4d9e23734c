package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/hnfeed/hnfeed/traverse"
)

type CommentsHandler struct {
	sessions    *traverse.Sessions
	batchSize   int
	concurrency int
}

func NewCommentsHandler(sessions *traverse.Sessions, batchSize, concurrency int) *CommentsHandler {
	return &CommentsHandler{sessions: sessions, batchSize: batchSize, concurrency: concurrency}
}

// GetComments handles GET /api/stories/{id}/comments?reset=true. Each call
// advances the story's pagination session by one batch and returns the full
// accumulated thread so far.
func (h *CommentsHandler) GetComments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	reset := r.URL.Query().Get("reset") == "true"

	story, comments, hasMore, err := h.sessions.GetPage(ctx, id, h.batchSize, h.concurrency, reset)
	if err != nil {
		if errors.Is(err, traverse.ErrStoryNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, r, map[string]interface{}{
		"story":    story,
		"comments": comments,
		"has_more": hasMore,
	})
}
