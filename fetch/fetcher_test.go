package fetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnfeed/hnfeed/hn"
)

// fakeSource is an in-memory item store that counts requests per id and
// tracks how many are in flight at once.
type fakeSource struct {
	mu    sync.Mutex
	items map[int]*hn.Item
	errs  map[int]error
	calls map[int]int

	delay       time.Duration
	gate        chan struct{}
	inflight    int32
	maxInflight int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		items: make(map[int]*hn.Item),
		errs:  make(map[int]error),
		calls: make(map[int]int),
	}
}

func (f *fakeSource) add(item *hn.Item) { f.items[item.ID] = item }

func (f *fakeSource) GetItem(ctx context.Context, id int) (*hn.Item, error) {
	cur := atomic.AddInt32(&f.inflight, 1)
	for {
		max := atomic.LoadInt32(&f.maxInflight)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxInflight, max, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.gate != nil {
		<-f.gate
	}
	atomic.AddInt32(&f.inflight, -1)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	return f.items[id], nil
}

func (f *fakeSource) callCount(id int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func comment(id, parent int, kids ...int) *hn.Item {
	return &hn.Item{ID: id, Type: "comment", By: "u", Time: 1700000000, Text: "t", Parent: parent, Kids: kids}
}

func TestFetchMemoizesResults(t *testing.T) {
	src := newFakeSource()
	src.add(comment(1, 100))
	f := NewFetcher(src)

	ctx := context.Background()
	first := f.Fetch(ctx, 1)
	second := f.Fetch(ctx, 1)

	require.NotNil(t, first)
	require.Same(t, first, second)
	require.Equal(t, 1, src.callCount(1))
}

func TestFetchMemoizesAbsence(t *testing.T) {
	src := newFakeSource()
	src.errs[7] = errors.New("boom")
	f := NewFetcher(src)

	ctx := context.Background()
	require.Nil(t, f.Fetch(ctx, 7))
	require.Nil(t, f.Fetch(ctx, 7))
	// The failed outcome is cached too: no second round-trip.
	require.Equal(t, 1, src.callCount(7))

	// A missing item (nil, nil) behaves the same way.
	require.Nil(t, f.Fetch(ctx, 8))
	require.Nil(t, f.Fetch(ctx, 8))
	require.Equal(t, 1, src.callCount(8))
}

func TestFetchSingleFlight(t *testing.T) {
	src := newFakeSource()
	src.add(comment(1, 100))
	src.gate = make(chan struct{})
	f := NewFetcher(src)

	// All callers start while the first request is held open by the gate,
	// so every one of them must attach to that request.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item := f.Fetch(context.Background(), 1)
			assert.NotNil(t, item)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	require.Equal(t, 1, src.callCount(1))
}

func TestFetchManyDropsAbsentKeepsOrder(t *testing.T) {
	src := newFakeSource()
	src.add(comment(1, 100))
	src.add(comment(3, 100))
	src.errs[2] = errors.New("boom")
	f := NewFetcher(src)

	items := f.FetchMany(context.Background(), []int{1, 2, 3, 4}, 2)

	ids := make([]int, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	require.Equal(t, []int{1, 3}, ids)
}

func TestFetchManyBoundsConcurrency(t *testing.T) {
	src := newFakeSource()
	ids := make([]int, 12)
	for i := range ids {
		ids[i] = i + 1
		src.add(comment(i+1, 100))
	}
	src.delay = 5 * time.Millisecond
	f := NewFetcher(src)

	items := f.FetchMany(context.Background(), ids, 3)

	require.Len(t, items, 12)
	require.LessOrEqual(t, atomic.LoadInt32(&src.maxInflight), int32(3))
}
