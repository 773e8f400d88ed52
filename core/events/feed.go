package events

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Feed fans committed events out to live subscribers. Emit never blocks: a
// subscriber whose buffer is full misses the event and its drop counter is
// bumped instead.
type Feed struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*Subscription
}

// Subscription is a single consumer of a Feed.
type Subscription struct {
	id      uint64
	prefix  string
	ch      chan Event
	feed    *Feed
	once    sync.Once
	dropped atomic.Uint64
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers a consumer for events whose type starts with prefix.
// An empty prefix receives everything.
func (f *Feed) Subscribe(prefix string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	sub := &Subscription{
		id:     f.nextID,
		prefix: strings.TrimSpace(prefix),
		ch:     make(chan Event, buffer),
		feed:   f,
	}
	f.subs[sub.id] = sub
	return sub
}

// Emit implements the Emitter interface.
func (f *Feed) Emit(evt Event) {
	if f == nil || evt == nil {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		if sub.prefix != "" && !strings.HasPrefix(evt.EventType(), sub.prefix) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Len reports the number of live subscriptions.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Events returns the delivery channel. It is closed by Unsubscribe.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Dropped reports how many events were skipped because the buffer was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Unsubscribe detaches the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s.id)
		close(s.ch)
		s.feed.mu.Unlock()
	})
}
