package api

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hnfeed/hnfeed/preview"
)

type PreviewHandler struct {
	previews *preview.Service
}

func NewPreviewHandler(previews *preview.Service) *PreviewHandler {
	return &PreviewHandler{previews: previews}
}

// GetPreview handles GET /api/preview?url=...
func (h *PreviewHandler) GetPreview(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		http.Error(w, "invalid url", http.StatusBadRequest)
		return
	}

	p, err := h.previews.Get(r.Context(), raw)
	if err != nil {
		slog.Warn("preview extraction failed", "url", raw, "error", err)
		http.Error(w, "preview unavailable", http.StatusBadGateway)
		return
	}

	writeJSON(w, r, p)
}
