// Package worker holds the background loops: periodic snapshot refresh and
// daily cache cleanup.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hnfeed/hnfeed/snapshot"
	"github.com/hnfeed/hnfeed/sse"
	"github.com/hnfeed/hnfeed/traverse"
)

// Refresher keeps the snapshot warm so interactive reads almost always hit
// the in-memory tier. Each cycle refreshes the top stories, samples a batch
// of comments into the snapshot, and notifies SSE subscribers.
type Refresher struct {
	cache   *snapshot.Cache
	session *traverse.FeedSession
	broker  *sse.Broker

	interval    time.Duration
	storyLimit  int
	batchSize   int
	concurrency int
}

func NewRefresher(cache *snapshot.Cache, session *traverse.FeedSession, broker *sse.Broker, interval time.Duration, storyLimit, batchSize, concurrency int) *Refresher {
	return &Refresher{
		cache:       cache,
		session:     session,
		broker:      broker,
		interval:    interval,
		storyLimit:  storyLimit,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// Start begins the refresh loop. It runs until the context is cancelled.
func (r *Refresher) Start(ctx context.Context) {
	go func() {
		r.refresh(ctx)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("refresher: shutting down")
				return
			case <-ticker.C:
				r.refresh(ctx)
			}
		}
	}()
}

func (r *Refresher) refresh(ctx context.Context) {
	start := time.Now()

	snap, err := r.cache.GetTopStories(ctx, r.storyLimit, r.interval, false)
	if err != nil {
		slog.Error("refresher: snapshot refresh failed", "error", err)
		return
	}

	targets := make([]int, len(snap.Stories))
	for i, st := range snap.Stories {
		targets[i] = st.ID
	}
	r.session.Prime(ctx, snap.Stories, targets, false)
	comments, _ := r.session.NextBatch(ctx, r.batchSize, r.concurrency)
	r.cache.MergeComments(ctx, comments)

	slog.Info("refresher: cycle complete",
		"stories", len(snap.Stories),
		"comments_sampled", len(comments),
		"elapsed", time.Since(start))

	data, _ := json.Marshal(map[string]interface{}{
		"captured_at": snap.CapturedAt,
		"stories":     len(snap.Stories),
	})
	r.broker.Publish("snapshot_refreshed", string(data))
}
