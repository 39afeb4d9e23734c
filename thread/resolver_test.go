package thread

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hnfeed/hnfeed/fetch"
	"github.com/hnfeed/hnfeed/hn"
	"github.com/hnfeed/hnfeed/traverse"
)

type fakeSource struct {
	mu    sync.Mutex
	items map[int]*hn.Item
}

func newFakeSource(items ...*hn.Item) *fakeSource {
	src := &fakeSource{items: make(map[int]*hn.Item)}
	for _, item := range items {
		src.items[item.ID] = item
	}
	return src
}

func (f *fakeSource) GetItem(ctx context.Context, id int) (*hn.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id], nil
}

func storyItem(id int, kids ...int) *hn.Item {
	return &hn.Item{ID: id, Type: "story", Title: "story", By: "a", Time: 1700000000, Kids: kids}
}

func commentItem(id, parent int, kids ...int) *hn.Item {
	return &hn.Item{ID: id, Type: "comment", By: "u", Time: 1700000000, Text: "text", Parent: parent, Kids: kids}
}

func newResolver(src *fakeSource) *Resolver {
	fetcher := fetch.NewFetcher(src)
	return NewResolver(fetcher, traverse.NewSessions(fetcher))
}

func TestResolveWalksToOwningStory(t *testing.T) {
	// comment(5) -> comment(4) -> story(1)
	src := newFakeSource(
		storyItem(1, 4),
		commentItem(4, 1, 5),
		commentItem(5, 4),
	)
	resolver := newResolver(src)

	resolved, err := resolver.Resolve(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, 5, resolved.SelectedID)
	require.Equal(t, 1, resolved.Story.ID)

	chainIDs := make([]int, len(resolved.ParentChain))
	for i, item := range resolved.ParentChain {
		chainIDs[i] = item.ID
	}
	require.Equal(t, []int{4, 1}, chainIDs, "chain runs upward and ends with the story")
	require.True(t, resolved.ParentChain[len(resolved.ParentChain)-1].IsStory())

	threadIDs := make([]int, len(resolved.Thread))
	for i, cm := range resolved.Thread {
		threadIDs[i] = cm.ID
	}
	require.Equal(t, []int{4, 5}, threadIDs)
}

func TestResolveRejectsNonComments(t *testing.T) {
	src := newFakeSource(storyItem(1))
	resolver := newResolver(src)

	_, err := resolver.Resolve(context.Background(), 1)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = resolver.Resolve(context.Background(), 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveFailsOnBrokenChain(t *testing.T) {
	// Parent 7 of comment 6 does not exist.
	src := newFakeSource(commentItem(6, 7))
	resolver := newResolver(src)

	_, err := resolver.Resolve(context.Background(), 6)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveGuardsAgainstCycles(t *testing.T) {
	// 7 and 8 are each other's parents; the hop guard must end the walk.
	src := newFakeSource(
		commentItem(7, 8),
		commentItem(8, 7),
	)
	resolver := newResolver(src)

	_, err := resolver.Resolve(context.Background(), 7)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveGuardIsConfigurable(t *testing.T) {
	// A 5-deep chain resolves with the default guard but not with maxHops 3.
	items := []*hn.Item{storyItem(1, 10)}
	parent := 1
	for i := 10; i <= 14; i++ {
		kid := i + 1
		if i == 14 {
			items = append(items, commentItem(i, parent))
		} else {
			items = append(items, commentItem(i, parent, kid))
		}
		parent = i
	}
	src := newFakeSource(items...)

	_, err := newResolver(src).Resolve(context.Background(), 14)
	require.NoError(t, err)

	limited := newResolver(src).WithLimits(3, 0)
	_, err = limited.Resolve(context.Background(), 14)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveCapsThread(t *testing.T) {
	// A story with far more comments than the cap: the thread is truncated.
	const total = 30
	kids := make([]int, total)
	items := make([]*hn.Item, 0, total+1)
	for i := 0; i < total; i++ {
		kids[i] = 100 + i
		items = append(items, commentItem(100+i, 1))
	}
	items = append(items, storyItem(1, kids...))
	items = append(items, commentItem(999, 1))
	src := newFakeSource(items...)
	src.items[1].Kids = append(src.items[1].Kids, 999)

	resolver := newResolver(src).WithLimits(0, 10)
	resolved, err := resolver.Resolve(context.Background(), 999)
	require.NoError(t, err)
	require.LessOrEqual(t, len(resolved.Thread), 10+pageBatch, "loading stops at the cap boundary")
	require.Equal(t, 10, len(resolved.Thread))
}

func TestResolveChainForRootComment(t *testing.T) {
	src := newFakeSource(
		storyItem(1, 4),
		commentItem(4, 1),
	)
	resolver := newResolver(src)

	resolved, err := resolver.Resolve(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, resolved.ParentChain, 1)
	require.Equal(t, 1, resolved.ParentChain[0].ID)

	chain := fmt.Sprintf("%d->%s", resolved.ParentChain[0].ID, resolved.ParentChain[0].Type)
	require.Equal(t, "1->story", chain)
}
