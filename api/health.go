package api

import (
	"net/http"
	"time"

	"github.com/hnfeed/hnfeed/snapshot"
	"github.com/hnfeed/hnfeed/sse"
)

type HealthHandler struct {
	cache  *snapshot.Cache
	broker *sse.Broker
}

func NewHealthHandler(cache *snapshot.Cache, broker *sse.Broker) *HealthHandler {
	return &HealthHandler{cache: cache, broker: broker}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":      "ok",
		"subscribers": h.broker.SubscriberCount(),
	}
	if snap := h.cache.Current(); snap != nil {
		resp["snapshot_age_ms"] = snap.Age(time.Now()).Milliseconds()
		resp["stories"] = len(snap.Stories)
		resp["comments_sampled"] = len(snap.Comments)
	}
	writeJSON(w, r, resp)
}
