// Package api exposes the feed, thread, context, and preview operations
// over HTTP.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/feeds"

	"github.com/hnfeed/hnfeed/feed"
	"github.com/hnfeed/hnfeed/snapshot"
	"github.com/hnfeed/hnfeed/sse"
	"github.com/hnfeed/hnfeed/traverse"
)

// FeedConfig carries the tunables of the feed path.
type FeedConfig struct {
	StoryLimit  int
	MaxAge      time.Duration
	BatchSize   int
	Concurrency int
	StoryRatio  float64
}

type FeedHandler struct {
	cache   *snapshot.Cache
	session *traverse.FeedSession
	broker  *sse.Broker
	cfg     FeedConfig
}

func NewFeedHandler(cache *snapshot.Cache, session *traverse.FeedSession, broker *sse.Broker, cfg FeedConfig) *FeedHandler {
	if cfg.StoryRatio <= 0 || cfg.StoryRatio > 1 {
		cfg.StoryRatio = feed.DefaultStoryRatio
	}
	return &FeedHandler{cache: cache, session: session, broker: broker, cfg: cfg}
}

// Feed handles GET /api/feed?seed=N&refresh=true.
//
// The default seed is the snapshot's capture time, so re-requesting the same
// snapshot reproduces the same mix order.
func (h *FeedHandler) Feed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	force := r.URL.Query().Get("refresh") == "true"

	snap, err := h.cache.GetTopStories(ctx, h.cfg.StoryLimit, h.cfg.MaxAge, force)
	if err != nil {
		slog.Error("feed: snapshot refresh failed", "error", err)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}

	targets := make([]int, len(snap.Stories))
	for i, st := range snap.Stories {
		targets[i] = st.ID
	}
	h.session.Prime(ctx, snap.Stories, targets, force)
	comments, hasMore := h.session.NextBatch(ctx, h.cfg.BatchSize, h.cfg.Concurrency)
	h.cache.MergeComments(ctx, comments)

	if force && h.broker != nil {
		h.broker.Publish("snapshot_refreshed", fmt.Sprintf(`{"captured_at":%d}`, snap.CapturedAt))
	}

	seed := snap.CapturedAt
	if s := r.URL.Query().Get("seed"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			seed = n
		}
	}

	items := feed.Mix(snap.Stories, comments, seed, h.cfg.StoryRatio)

	writeJSON(w, r, map[string]interface{}{
		"items":       items,
		"has_more":    hasMore,
		"seed":        seed,
		"captured_at": snap.CapturedAt,
	})
}

// RSS handles GET /api/feed/rss with an RSS 2.0 rendering of the snapshot's
// stories.
func (h *FeedHandler) RSS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, err := h.cache.GetTopStories(ctx, h.cfg.StoryLimit, h.cfg.MaxAge, false)
	if err != nil {
		slog.Error("rss: snapshot refresh failed", "error", err)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}

	out := &feeds.Feed{
		Title:       "hnfeed top stories",
		Link:        &feeds.Link{Href: "https://news.ycombinator.com/"},
		Description: "Top Hacker News stories, snapshotted",
		Created:     time.UnixMilli(snap.CapturedAt),
	}
	for _, st := range snap.Stories {
		link := st.URL
		if link == "" {
			link = fmt.Sprintf("https://news.ycombinator.com/item?id=%d", st.ID)
		}
		out.Items = append(out.Items, &feeds.Item{
			Id:          strconv.Itoa(st.ID),
			Title:       st.Title,
			Link:        &feeds.Link{Href: link},
			Author:      &feeds.Author{Name: st.By},
			Description: fmt.Sprintf("%d points, %d comments", st.Score, st.CommentCount),
			Created:     time.Unix(st.Time, 0),
		})
	}

	rss, err := out.ToRss()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	fmt.Fprint(w, rss)
}
