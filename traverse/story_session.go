package traverse

import (
	"context"
	"errors"
	"sync"

	"github.com/hnfeed/hnfeed/feed"
	"github.com/hnfeed/hnfeed/fetch"
	"github.com/hnfeed/hnfeed/hn"
)

// ErrStoryNotFound is returned when the requested story is absent from the
// remote store or is not a valid story item.
var ErrStoryNotFound = errors.New("story not found")

// storySession paginates one story's full comment tree breadth-first. There
// is no seen set: each id is enqueued exactly once, by the parent that
// discovered it, gated by the depth map (an id already in the map is never
// re-enqueued, so its depth is fixed at first discovery).
type storySession struct {
	mu       sync.Mutex
	story    feed.Story
	queue    []entry
	depth    map[int]int
	comments []feed.Comment
}

// Sessions owns the per-story sessions, keyed by story id, so repeated
// navigation to the same story resumes its pagination rather than starting
// over. Replacing a session on reset detaches the old one; any call still
// draining the old session commits into the detached object, which is how
// stale results are discarded.
type Sessions struct {
	fetcher *fetch.Fetcher

	mu      sync.Mutex
	byStory map[int]*storySession
}

func NewSessions(fetcher *fetch.Fetcher) *Sessions {
	return &Sessions{fetcher: fetcher, byStory: make(map[int]*storySession)}
}

// GetPage advances the story's traversal by up to batchSize comments and
// returns the story, the entire accumulated comment list so far, and
// whether more remain. Once the queue is drained further calls return the
// same accumulated list with hasMore false.
func (m *Sessions) GetPage(ctx context.Context, storyID, batchSize, concurrency int, reset bool) (feed.Story, []feed.Comment, bool, error) {
	sess, err := m.session(ctx, storyID, reset)
	if err != nil {
		return feed.Story{}, nil, false, err
	}

	comments, hasMore := sess.advance(ctx, m.fetcher, batchSize, concurrency)
	return sess.story, comments, hasMore, nil
}

// Reset drops the session for storyID; the next GetPage rebuilds it.
func (m *Sessions) Reset(storyID int) {
	m.mu.Lock()
	delete(m.byStory, storyID)
	m.mu.Unlock()
}

func (m *Sessions) session(ctx context.Context, storyID int, reset bool) (*storySession, error) {
	m.mu.Lock()
	if !reset {
		if sess, ok := m.byStory[storyID]; ok {
			m.mu.Unlock()
			return sess, nil
		}
	}
	m.mu.Unlock()

	item := m.fetcher.Fetch(ctx, storyID)
	story, ok := feed.StoryFromItem(item)
	if !ok {
		return nil, ErrStoryNotFound
	}

	sess := newStorySession(story, item.Kids)

	m.mu.Lock()
	// A concurrent call may have built a session meanwhile; without an
	// explicit reset the earlier one keeps its progress.
	if !reset {
		if existing, ok := m.byStory[storyID]; ok {
			m.mu.Unlock()
			return existing, nil
		}
	}
	m.byStory[storyID] = sess
	m.mu.Unlock()

	return sess, nil
}

func newStorySession(story feed.Story, rootIDs []int) *storySession {
	sess := &storySession{
		story: story,
		depth: make(map[int]int, len(rootIDs)),
	}
	for _, id := range rootIDs {
		if _, ok := sess.depth[id]; ok {
			continue
		}
		sess.depth[id] = 0
		sess.queue = append(sess.queue, entry{storyID: story.ID, commentID: id, depth: 0})
	}
	return sess
}

// advance drains the queue in FIFO chunks of up to concurrency entries until
// batchSize new comments have been produced or the queue empties. Items
// within a chunk resolve in any order; that is fine because each entry
// carries the depth recorded at discovery.
func (s *storySession) advance(ctx context.Context, fetcher *fetch.Fetcher, batchSize, concurrency int) ([]feed.Comment, bool) {
	if concurrency < 1 {
		concurrency = 1
	}

	produced := 0

	s.mu.Lock()
	for produced < batchSize && len(s.queue) > 0 {
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
		items := fetcher.FetchMany(ctx, ids, concurrency)
		byID := make(map[int]*hn.Item, len(items))
		for _, item := range items {
			byID[item.ID] = item
		}

		s.mu.Lock()
		for _, e := range popped {
			item := byID[e.commentID]
			if item == nil {
				continue
			}
			if cm, ok := feed.CommentFromItem(item, s.story.ID, s.story.Title, e.depth); ok {
				s.comments = append(s.comments, cm)
				produced++
			}
			for _, kid := range item.Kids {
				if _, ok := s.depth[kid]; ok {
					continue
				}
				s.depth[kid] = e.depth + 1
				s.queue = append(s.queue, entry{storyID: s.story.ID, commentID: kid, depth: e.depth + 1})
			}
		}
	}

	out := make([]feed.Comment, len(s.comments))
	copy(out, s.comments)
	hasMore := len(s.queue) > 0
	s.mu.Unlock()

	return out, hasMore
}
