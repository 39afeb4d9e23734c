package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hnfeed/hnfeed/kv"
)

const previewKeyPrefix = "preview:"

// Cleaner prunes preview cache entries that have not been rewritten in
// maxAge, once a day.
type Cleaner struct {
	store  *kv.Store
	maxAge time.Duration
}

func NewCleaner(store *kv.Store, maxAge time.Duration) *Cleaner {
	return &Cleaner{store: store, maxAge: maxAge}
}

// Start begins the daily cleanup cycle. It runs until the context is
// cancelled.
func (c *Cleaner) Start(ctx context.Context) {
	go func() {
		// First run after 1 hour; pruning at boot buys nothing.
		select {
		case <-time.After(1 * time.Hour):
			c.cleanup(ctx)
		case <-ctx.Done():
			slog.Info("cleaner: shutting down before first run")
			return
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("cleaner: shutting down")
				return
			case <-ticker.C:
				c.cleanup(ctx)
			}
		}
	}()
}

func (c *Cleaner) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-c.maxAge).Unix()
	n, err := c.store.DeleteOlderThan(ctx, previewKeyPrefix, cutoff)
	if err != nil {
		slog.Error("cleaner: prune failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("cleaner: pruned stale previews", "count", n)
	}
}
