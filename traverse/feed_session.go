// Package traverse implements breadth-first comment-tree traversal as
// resumable sessions: a cross-story session that samples several trees for
// the feed, and per-story sessions that exhaustively paginate one tree.
package traverse

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hnfeed/hnfeed/feed"
	"github.com/hnfeed/hnfeed/fetch"
	"github.com/hnfeed/hnfeed/hn"
)

// entry is one unit of traversal work. Depth of a child is parent depth + 1,
// assigned by the discovering parent, first write wins.
type entry struct {
	storyID   int
	commentID int
	depth     int
}

// primeConcurrency bounds the fetches used to backfill missing root
// comment-id lists during Prime.
const primeConcurrency = 4

// FeedSession interleaves breadth-first expansion across several stories'
// comment trees. It samples rather than exhausts: callers pull bounded
// batches and the session remembers where it left off. The seen set is
// monotonic for the lifetime of one priming, so no comment is emitted twice.
type FeedSession struct {
	fetcher *fetch.Fetcher

	mu      sync.Mutex
	key     string
	queue   []entry
	seen    map[int]bool
	stories map[int]feed.Story
	roots   map[int][]int
	gen     uint64
}

func NewFeedSession(fetcher *fetch.Fetcher) *FeedSession {
	return &FeedSession{
		fetcher: fetcher,
		seen:    make(map[int]bool),
		stories: make(map[int]feed.Story),
		roots:   make(map[int][]int),
	}
}

// Prime prepares the session for the given target stories. Root comment-id
// lists are fetched for any target not already known. The queue is rebuilt —
// one entry per (story, root comment) pair in story order then root order —
// only when the participating story set changed or reset is requested;
// re-priming with the same set otherwise leaves the session untouched, so
// navigating away and back resumes instead of restarting.
func (s *FeedSession) Prime(ctx context.Context, stories []feed.Story, targetIDs []int, reset bool) {
	byID := make(map[int]feed.Story, len(stories))
	for _, st := range stories {
		byID[st.ID] = st
	}

	targets := make([]feed.Story, 0, len(targetIDs))
	for _, id := range targetIDs {
		if st, ok := byID[id]; ok {
			targets = append(targets, st)
		}
	}

	s.ensureRoots(ctx, targets)

	key := storySetKey(targets)

	s.mu.Lock()
	defer s.mu.Unlock()

	if key == s.key && !reset {
		return
	}

	s.key = key
	s.queue = s.queue[:0]
	s.seen = make(map[int]bool)
	s.stories = make(map[int]feed.Story, len(targets))
	s.gen++

	for _, st := range targets {
		s.stories[st.ID] = st
		for _, root := range s.rootsLocked(st.ID) {
			s.queue = append(s.queue, entry{storyID: st.ID, commentID: root, depth: 0})
		}
	}
}

// NextBatch pops up to concurrency entries at a time, fetches them, and
// emits comments until at least batchSize have been produced or the queue
// drains; the stop check runs between chunks, so the last chunk may
// overshoot batchSize slightly. Children of each resolved comment are
// enqueued one level deeper. The second return is true iff the queue still
// has entries.
//
// If the session is re-primed while a fetch is in flight, the stale results
// are discarded silently and the call returns empty.
func (s *FeedSession) NextBatch(ctx context.Context, batchSize, concurrency int) ([]feed.Comment, bool) {
	if concurrency < 1 {
		concurrency = 1
	}

	var out []feed.Comment

	s.mu.Lock()
	gen := s.gen
	for len(out) < batchSize && len(s.queue) > 0 {
		take := concurrency
		if take > len(s.queue) {
			take = len(s.queue)
		}
		popped := make([]entry, take)
		copy(popped, s.queue[:take])
		s.queue = s.queue[take:]
		s.mu.Unlock()

		ids := make([]int, len(popped))
		for i, e := range popped {
			ids[i] = e.commentID
		}
		items := s.fetcher.FetchMany(ctx, ids, concurrency)
		byID := make(map[int]*hn.Item, len(items))
		for _, item := range items {
			byID[item.ID] = item
		}

		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return nil, false
		}
		for _, e := range popped {
			item := byID[e.commentID]
			if item == nil {
				continue // absent: dead end
			}
			if s.seen[item.ID] {
				continue
			}
			st, ok := s.stories[e.storyID]
			if !ok {
				continue
			}
			s.seen[item.ID] = true

			if cm, ok := feed.CommentFromItem(item, st.ID, st.Title, e.depth); ok {
				out = append(out, cm)
			}
			for _, kid := range item.Kids {
				if !s.seen[kid] {
					s.queue = append(s.queue, entry{storyID: e.storyID, commentID: kid, depth: e.depth + 1})
				}
			}
		}
	}
	hasMore := len(s.queue) > 0
	s.mu.Unlock()

	return out, hasMore
}

// HasMore reports whether the queue still has entries.
func (s *FeedSession) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) > 0
}

// Reset clears the session; the next Prime rebuilds it unconditionally.
func (s *FeedSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = ""
	s.queue = nil
	s.seen = make(map[int]bool)
	s.stories = make(map[int]feed.Story)
	s.gen++
}

// ensureRoots backfills root comment-id lists for targets not yet known.
// Known lists are kept as-is: root sets are sampled once per session build.
func (s *FeedSession) ensureRoots(ctx context.Context, targets []feed.Story) {
	s.mu.Lock()
	var missing []int
	for _, st := range targets {
		if _, ok := s.roots[st.ID]; !ok {
			missing = append(missing, st.ID)
		}
	}
	s.mu.Unlock()

	if len(missing) == 0 {
		return
	}

	items := s.fetcher.FetchMany(ctx, missing, primeConcurrency)

	s.mu.Lock()
	for _, item := range items {
		s.roots[item.ID] = item.Kids
	}
	// Absent stories get an empty root list so we do not refetch every prime.
	for _, id := range missing {
		if _, ok := s.roots[id]; !ok {
			s.roots[id] = nil
		}
	}
	s.mu.Unlock()
}

func (s *FeedSession) rootsLocked(storyID int) []int {
	return s.roots[storyID]
}

// storySetKey identifies the participating story set independent of order.
func storySetKey(stories []feed.Story) string {
	ids := make([]int, len(stories))
	for i, st := range stories {
		ids[i] = st.ID
	}
	sort.Ints(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
