// Package snapshot maintains the latest top-story view: an in-memory tier
// for TTL-bounded reads and a persistent tier that survives restarts.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hnfeed/hnfeed/feed"
	"github.com/hnfeed/hnfeed/fetch"
	"github.com/hnfeed/hnfeed/hn"
)

const (
	// MaxStories bounds the story list on persisted reads.
	MaxStories = 10
	// MaxComments bounds the sampled comment list everywhere.
	MaxComments = 120

	snapshotKey = "snapshot"
)

// Snapshot is one capture of the top stories plus sampled comments.
// CapturedAt is unix milliseconds.
type Snapshot struct {
	Stories    []feed.Story   `json:"stories"`
	Comments   []feed.Comment `json:"comments"`
	CapturedAt int64          `json:"capturedAt"`
}

// Age returns how old the snapshot is relative to now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(s.CapturedAt))
}

// Lister is the top-id listing side of the remote store.
type Lister interface {
	TopIDs(ctx context.Context) ([]int, error)
}

// Blobs is the persistent tier. kv.Store satisfies it; a nil Blobs disables
// persistence.
type Blobs interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

// Cache is the process-wide snapshot holder. A refresh replaces the whole
// in-memory snapshot; partial mutation never happens. The generation counter
// is the staleness check: an async refresh commits only if no other commit
// or reset landed while it was fetching.
type Cache struct {
	lister      Lister
	fetcher     *fetch.Fetcher
	blobs       Blobs
	concurrency int
	now         func() time.Time

	mu   sync.Mutex
	snap *Snapshot
	gen  uint64
}

func NewCache(lister Lister, fetcher *fetch.Fetcher, blobs Blobs, concurrency int) *Cache {
	return &Cache{
		lister:      lister,
		fetcher:     fetcher,
		blobs:       blobs,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// GetTopStories returns a snapshot at most maxAge old, refreshing from the
// remote store when the cached one is missing, empty, or expired. A forced
// refresh also discards previously sampled comments instead of carrying
// them forward.
func (c *Cache) GetTopStories(ctx context.Context, storyLimit int, maxAge time.Duration, force bool) (*Snapshot, error) {
	if storyLimit <= 0 || storyLimit > MaxStories {
		storyLimit = MaxStories
	}

	c.mu.Lock()
	if c.snap == nil {
		if persisted, ok := c.loadPersisted(ctx); ok {
			c.snap = persisted
		}
	}
	if !force && c.fresh(maxAge) {
		snap := c.snap
		c.mu.Unlock()
		return snap, nil
	}
	gen := c.gen
	prev := c.snap
	c.mu.Unlock()

	ids, err := c.lister.TopIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh snapshot: %w", err)
	}
	if len(ids) > storyLimit {
		ids = ids[:storyLimit]
	}

	items := c.fetcher.FetchMany(ctx, ids, c.concurrency)
	fresh := &Snapshot{
		Stories:    storiesFromItems(items),
		CapturedAt: c.now().UnixMilli(),
	}
	if !force && prev != nil {
		fresh.Comments = carryForward(prev.Comments, fresh.Stories)
	}

	c.mu.Lock()
	if c.gen != gen {
		// A competing commit or reset landed while we were fetching; the
		// cached state wins and this result is never committed. After a
		// reset nothing is cached, so the uncommitted result still serves
		// this one caller.
		snap := c.snap
		c.mu.Unlock()
		if snap == nil {
			return fresh, nil
		}
		return snap, nil
	}
	c.snap = fresh
	c.gen++
	c.mu.Unlock()

	c.persist(ctx, fresh)
	return fresh, nil
}

// MergeComments folds sampled comments into the current snapshot,
// deduplicated by id and capped at MaxComments, and re-persists it.
func (c *Cache) MergeComments(ctx context.Context, comments []feed.Comment) {
	if len(comments) == 0 {
		return
	}

	c.mu.Lock()
	if c.snap == nil {
		c.mu.Unlock()
		return
	}
	cur := c.snap
	seen := make(map[int]bool, len(cur.Comments))
	for _, cm := range cur.Comments {
		seen[cm.ID] = true
	}
	merged := make([]feed.Comment, len(cur.Comments), len(cur.Comments)+len(comments))
	copy(merged, cur.Comments)
	for _, cm := range comments {
		if seen[cm.ID] || len(merged) >= MaxComments {
			continue
		}
		seen[cm.ID] = true
		merged = append(merged, cm)
	}
	if len(merged) == len(cur.Comments) {
		c.mu.Unlock()
		return
	}
	// Handed-out snapshots are immutable; merging swaps in a new one.
	next := &Snapshot{Stories: cur.Stories, Comments: merged, CapturedAt: cur.CapturedAt}
	c.snap = next
	c.mu.Unlock()

	c.persist(ctx, next)
}

// Reset drops the in-memory snapshot and invalidates any refresh still in
// flight.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.snap = nil
	c.gen++
	c.mu.Unlock()
}

// Current returns the in-memory snapshot without refreshing, or nil.
func (c *Cache) Current() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

func (c *Cache) fresh(maxAge time.Duration) bool {
	return c.snap != nil && len(c.snap.Stories) > 0 && c.snap.Age(c.now()) < maxAge
}

// persistedSnapshot mirrors Snapshot with a pointer CapturedAt so a missing
// or non-numeric field fails validation instead of defaulting to zero.
type persistedSnapshot struct {
	Stories    []feed.Story   `json:"stories"`
	Comments   []feed.Comment `json:"comments"`
	CapturedAt *int64         `json:"capturedAt"`
}

// loadPersisted reads the persistent tier. Any storage fault or shape
// problem discards the whole record: the caller proceeds as if no snapshot
// had been persisted.
func (c *Cache) loadPersisted(ctx context.Context) (*Snapshot, bool) {
	if c.blobs == nil {
		return nil, false
	}
	raw, ok := c.blobs.Get(ctx, snapshotKey)
	if !ok {
		return nil, false
	}

	var p persistedSnapshot
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		slog.Warn("discarding malformed persisted snapshot", "error", err)
		return nil, false
	}
	if p.CapturedAt == nil || len(p.Stories) == 0 {
		slog.Warn("discarding incomplete persisted snapshot")
		return nil, false
	}

	snap := &Snapshot{Stories: p.Stories, Comments: p.Comments, CapturedAt: *p.CapturedAt}
	if len(snap.Stories) > MaxStories {
		snap.Stories = snap.Stories[:MaxStories]
	}
	if len(snap.Comments) > MaxComments {
		snap.Comments = snap.Comments[:MaxComments]
	}
	return snap, true
}

func (c *Cache) persist(ctx context.Context, snap *Snapshot) {
	if c.blobs == nil {
		return
	}
	out := *snap
	if len(out.Comments) > MaxComments {
		out.Comments = out.Comments[:MaxComments]
	}
	data, err := json.Marshal(&out)
	if err != nil {
		slog.Warn("marshal snapshot failed", "error", err)
		return
	}
	c.blobs.Set(ctx, snapshotKey, string(data))
}

func storiesFromItems(items []*hn.Item) []feed.Story {
	stories := make([]feed.Story, 0, len(items))
	for _, item := range items {
		if story, ok := feed.StoryFromItem(item); ok {
			stories = append(stories, story)
		}
	}
	return stories
}

// carryForward keeps previously sampled comments whose owning story is still
// in the new story set. Comments for dropped stories go stale and are
// discarded.
func carryForward(comments []feed.Comment, stories []feed.Story) []feed.Comment {
	if len(comments) == 0 {
		return nil
	}
	alive := make(map[int]bool, len(stories))
	for _, s := range stories {
		alive[s.ID] = true
	}
	kept := make([]feed.Comment, 0, len(comments))
	for _, cm := range comments {
		if !alive[cm.StoryID] {
			continue
		}
		kept = append(kept, cm)
		if len(kept) == MaxComments {
			break
		}
	}
	return kept
}
