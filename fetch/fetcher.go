// Package fetch provides deduplicated single-item retrieval and
// bounded-fanout batch retrieval over the remote item store.
package fetch

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/hnfeed/hnfeed/hn"
)

// Source is the remote item store as seen by the fetcher.
type Source interface {
	GetItem(ctx context.Context, id int) (*hn.Item, error)
}

// Fetcher retrieves items with two guarantees: concurrent callers for the
// same id share one underlying request, and every outcome — including
// absence — is memoized for the lifetime of the process. Fetch errors are
// swallowed and reported as absent; a missing item and a failed item look
// identical to callers, and traversal treats both as dead ends.
type Fetcher struct {
	source Source
	group  singleflight.Group

	mu    sync.Mutex
	items map[int]*hn.Item // nil value means known-absent
}

func NewFetcher(source Source) *Fetcher {
	return &Fetcher{source: source, items: make(map[int]*hn.Item)}
}

// Fetch returns the item for id, or nil if it is absent or unretrievable.
func (f *Fetcher) Fetch(ctx context.Context, id int) *hn.Item {
	f.mu.Lock()
	if item, ok := f.items[id]; ok {
		f.mu.Unlock()
		return item
	}
	f.mu.Unlock()

	v, _, _ := f.group.Do(strconv.Itoa(id), func() (interface{}, error) {
		item, err := f.source.GetItem(ctx, id)
		if err != nil {
			slog.Debug("item fetch failed", "item_id", id, "error", err)
			item = nil
		}
		f.mu.Lock()
		f.items[id] = item
		f.mu.Unlock()
		return item, nil
	})

	item, _ := v.(*hn.Item)
	return item
}

// FetchMany fetches ids in consecutive chunks of size concurrency. Each
// chunk's requests run in parallel and the chunk completes as a whole before
// the next one starts, so at most concurrency requests from this call are
// outstanding at any time. Absent items are dropped; results follow input
// order of the surviving ids.
func (f *Fetcher) FetchMany(ctx context.Context, ids []int, concurrency int) []*hn.Item {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]*hn.Item, len(ids))
	for start := 0; start < len(ids); start += concurrency {
		end := start + concurrency
		if end > len(ids) {
			end = len(ids)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = f.Fetch(ctx, ids[idx])
			}(i)
		}
		wg.Wait()

		if ctx.Err() != nil {
			break
		}
	}

	items := make([]*hn.Item, 0, len(ids))
	for _, item := range results {
		if item != nil {
			items = append(items, item)
		}
	}
	return items
}
