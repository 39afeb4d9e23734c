// Package sse broadcasts refresh notifications to connected clients over
// Server-Sent Events, with a bounded replay buffer for reconnects.
package sse

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

type Event struct {
	ID   uint64
	Type string
	Data string
}

func (e Event) write(w http.ResponseWriter) {
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", e.ID, e.Type, e.Data)
}

// Broker fans events out to subscribers. Recent events are kept in a fixed
// circular buffer so a reconnecting client can catch up from its
// Last-Event-ID; clients that fall off the buffer get a sync_required event
// telling them to reload instead.
type Broker struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	buf    []Event
	head   int // next write position
	filled bool
	nextID uint64
}

func NewBroker(bufSize int) *Broker {
	if bufSize < 1 {
		bufSize = 1
	}
	return &Broker{
		subs:   make(map[chan Event]struct{}),
		buf:    make([]Event, bufSize),
		nextID: 1,
	}
}

// Publish records the event and delivers it to every subscriber. Slow
// subscribers are skipped, not blocked on; they recover via replay.
func (b *Broker) Publish(eventType, data string) {
	b.mu.Lock()
	evt := Event{ID: b.nextID, Type: eventType, Data: data}
	b.nextID++

	b.buf[b.head] = evt
	b.head++
	if b.head == len(b.buf) {
		b.head = 0
		b.filled = true
	}

	targets := make([]chan Event, 0, len(b.subs))
	for ch := range b.subs {
		targets = append(targets, ch)
	}
	b.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- evt:
		default:
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broker) subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}

// replayAfter returns buffered events newer than lastID. The second return
// is false when lastID has already been evicted from the buffer.
func (b *Broker) replayAfter(lastID uint64) ([]Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var ordered []Event
	if b.filled {
		ordered = append(ordered, b.buf[b.head:]...)
	}
	ordered = append(ordered, b.buf[:b.head]...)

	if len(ordered) > 0 && lastID+1 < ordered[0].ID {
		return nil, false
	}

	var out []Event
	for _, e := range ordered {
		if e.ID > lastID {
			out = append(out, e)
		}
	}
	return out, true
}

func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if raw := r.Header.Get("Last-Event-ID"); raw != "" {
		if lastID, err := strconv.ParseUint(raw, 10, 64); err == nil {
			events, ok := b.replayAfter(lastID)
			if !ok {
				b.mu.RLock()
				latest := b.nextID - 1
				b.mu.RUnlock()
				fmt.Fprintf(w, "id: %d\nevent: sync_required\ndata: {}\n\n", latest)
			}
			for _, e := range events {
				e.write(w)
			}
			flusher.Flush()
		}
	}

	ch := b.subscribe()
	defer b.unsubscribe(ch)

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			evt.write(w)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
