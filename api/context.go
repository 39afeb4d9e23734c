package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/hnfeed/hnfeed/thread"
)

type ContextHandler struct {
	resolver *thread.Resolver
}

func NewContextHandler(resolver *thread.Resolver) *ContextHandler {
	return &ContextHandler{resolver: resolver}
}

// GetContext handles GET /api/comments/{id}/context: the owning story, its
// thread, and the ancestor chain for "show comment in context".
func (h *ContextHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	resolved, err := h.resolver.Resolve(ctx, id)
	if err != nil {
		if errors.Is(err, thread.ErrNotFound) {
			http.Error(w, "context not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, r, resolved)
}
