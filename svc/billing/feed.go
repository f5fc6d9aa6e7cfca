package billing

import (
	"context"
	"sync"
)

// Feed is a hot broadcast for values of type T. Each subscriber has a
// one-slot buffer with a drop-oldest overflow policy: publishing never
// blocks, and a subscriber that falls behind only sees the most recent
// unconsumed value. Late subscribers receive no replay.
type Feed[T any] struct {
	mu     sync.RWMutex
	subs   map[*FeedSub[T]]struct{}
	closed bool
	wg     sync.WaitGroup // context-cleanup goroutines
}

// NewFeed creates an empty feed.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[*FeedSub[T]]struct{})}
}

// Subscribe attaches a new subscriber. The subscription is removed when
// the context is cancelled or Close is called on the subscriber. A closed
// feed returns an already-closed subscriber.
func (f *Feed[T]) Subscribe(ctx context.Context) *FeedSub[T] {
	sub := &FeedSub[T]{
		ch:   make(chan T, 1),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		sub.close()
		return sub
	}
	f.subs[sub] = struct{}{}

	if ctx.Done() != nil {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			select {
			case <-ctx.Done():
				f.unsubscribe(sub)
			case <-sub.done:
			}
		}()
	}

	return sub
}

// Publish delivers a value to every subscriber without blocking.
// When a subscriber's slot is occupied the stale value is dropped
// so the newest one wins.
func (f *Feed[T]) Publish(v T) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return
	}
	for sub := range f.subs {
		sub.offer(v)
	}
}

// Close shuts down the feed and every subscriber.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	for sub := range f.subs {
		sub.close()
	}
	clear(f.subs)
	f.mu.Unlock()

	f.wg.Wait()
}

func (f *Feed[T]) unsubscribe(sub *FeedSub[T]) {
	f.mu.Lock()
	delete(f.subs, sub)
	f.mu.Unlock()
	sub.close()
}

// FeedSub is a single subscription to a Feed.
type FeedSub[T any] struct {
	ch   chan T
	done chan struct{}
	mu   sync.Mutex
	once sync.Once
}

// Events returns the receive channel. It is closed when the subscription
// ends; values published before the subscription started are never seen.
func (s *FeedSub[T]) Events() <-chan T {
	return s.ch
}

// Close detaches the subscriber. Idempotent.
func (s *FeedSub[T]) Close() {
	s.close()
}

// close serializes with offer on s.mu so the channel is never closed
// while a send is in flight.
func (s *FeedSub[T]) close() {
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		close(s.done)
		close(s.ch)
	})
}

// offer places v in the slot, evicting the oldest unconsumed value if needed.
func (s *FeedSub[T]) offer(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return
	default:
	}

	for {
		select {
		case s.ch <- v:
			return
		default:
		}
		// Slot occupied: evict the stale value and retry. A concurrent
		// reader may win the race, in which case the send succeeds on
		// the next pass.
		select {
		case <-s.ch:
		default:
		}
	}
}
