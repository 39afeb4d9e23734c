// Package thread resolves a comment into its surrounding context: the
// owning story, the story's thread, and the chain of ancestors between the
// comment and the story.
package thread

import (
	"context"
	"errors"

	"github.com/hnfeed/hnfeed/feed"
	"github.com/hnfeed/hnfeed/fetch"
	"github.com/hnfeed/hnfeed/hn"
	"github.com/hnfeed/hnfeed/traverse"
)

// ErrNotFound is returned when the target is absent, is not a comment, or
// no owning story is reachable within the hop guard.
var ErrNotFound = errors.New("comment context not found")

const (
	// DefaultMaxHops guards the ancestor walk against cyclic or malformed
	// parent links.
	DefaultMaxHops = 40
	// DefaultThreadCap bounds how much of the story's thread is loaded.
	DefaultThreadCap = 220

	pageBatch       = 20
	pageConcurrency = 4
)

// Context is the resolved surrounding of one comment. ParentChain runs from
// the comment's immediate parent upward and ends with the owning story item.
type Context struct {
	SelectedID  int            `json:"selected_id"`
	Story       feed.Story     `json:"story"`
	Thread      []feed.Comment `json:"thread"`
	ParentChain []*hn.Item     `json:"parent_chain"`
}

type Resolver struct {
	fetcher   *fetch.Fetcher
	sessions  *traverse.Sessions
	maxHops   int
	threadCap int
}

func NewResolver(fetcher *fetch.Fetcher, sessions *traverse.Sessions) *Resolver {
	return &Resolver{
		fetcher:   fetcher,
		sessions:  sessions,
		maxHops:   DefaultMaxHops,
		threadCap: DefaultThreadCap,
	}
}

// WithLimits overrides the hop guard and thread cap. Zero keeps the default.
func (r *Resolver) WithLimits(maxHops, threadCap int) *Resolver {
	if maxHops > 0 {
		r.maxHops = maxHops
	}
	if threadCap > 0 {
		r.threadCap = threadCap
	}
	return r
}

// Resolve walks the comment's parent links up to the owning story, then
// loads that story's thread through the per-story session until it is
// exhausted or the thread cap is reached.
func (r *Resolver) Resolve(ctx context.Context, commentID int) (*Context, error) {
	item := r.fetcher.Fetch(ctx, commentID)
	if !item.IsComment() {
		return nil, ErrNotFound
	}

	chain, storyID, ok := r.walkUp(ctx, item)
	if !ok {
		return nil, ErrNotFound
	}

	story, thread, err := r.loadThread(ctx, storyID)
	if err != nil {
		return nil, err
	}

	return &Context{
		SelectedID:  commentID,
		Story:       story,
		Thread:      thread,
		ParentChain: chain,
	}, nil
}

// walkUp follows parent links, collecting ancestors, until it reaches a
// story or runs out of hops. A missing ancestor or an exceeded guard means
// the context cannot be resolved.
func (r *Resolver) walkUp(ctx context.Context, item *hn.Item) ([]*hn.Item, int, bool) {
	var chain []*hn.Item
	cur := item
	for hops := 0; hops < r.maxHops; hops++ {
		if cur.Parent == 0 {
			return nil, 0, false
		}
		parent := r.fetcher.Fetch(ctx, cur.Parent)
		if parent == nil {
			return nil, 0, false
		}
		chain = append(chain, parent)
		if parent.IsStory() {
			return chain, parent.ID, true
		}
		cur = parent
	}
	return nil, 0, false
}

func (r *Resolver) loadThread(ctx context.Context, storyID int) (feed.Story, []feed.Comment, error) {
	var (
		story    feed.Story
		comments []feed.Comment
	)
	for {
		st, cs, hasMore, err := r.sessions.GetPage(ctx, storyID, pageBatch, pageConcurrency, false)
		if err != nil {
			return feed.Story{}, nil, err
		}
		story, comments = st, cs
		if !hasMore || len(comments) >= r.threadCap {
			break
		}
	}
	if len(comments) > r.threadCap {
		comments = comments[:r.threadCap]
	}
	return story, comments, nil
}
