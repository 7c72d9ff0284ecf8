// Package bus is the in-process publish/subscribe transport that carries
// chunks to the bridge and completion events back to the producer.
//
// A Topic fans every published value out to each subscription's bounded
// queue. A full queue drops its oldest entry, so publishers never block.
package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when subscribing to or waiting on a closed topic
// or subscription.
var ErrClosed = errors.New("bus: closed")

// Topic is a typed fan-out channel with per-subscriber queues.
type Topic[T any] struct {
	mu         sync.Mutex
	depth      int
	subs       map[*Subscription[T]]struct{}
	publishers int
	closed     bool
}

// NewTopic creates a topic whose subscriptions buffer up to depth values.
func NewTopic[T any](depth int) *Topic[T] {
	if depth < 1 {
		depth = 1
	}
	return &Topic[T]{
		depth: depth,
		subs:  make(map[*Subscription[T]]struct{}),
	}
}

// Subscribe attaches a new subscription. Values published before the call
// are not delivered to it.
func (t *Topic[T]) Subscribe() (*Subscription[T], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	s := &Subscription[T]{
		topic:  t,
		queue:  make([]T, 0, t.depth),
		notify: make(chan struct{}, 1),
	}
	t.subs[s] = struct{}{}
	return s, nil
}

// Publish delivers v to every subscription. It returns the number of
// subscriptions that had to drop their oldest value to make room.
func (t *Topic[T]) Publish(v T) (dropped int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0
	}
	for s := range t.subs {
		if s.push(v, t.depth) {
			dropped++
		}
	}
	return dropped
}

// Advertise registers a publisher handle. The handle's Close only
// unregisters it; the topic stays open for other publishers.
func (t *Topic[T]) Advertise() (*Publisher[T], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	t.publishers++
	return &Publisher[T]{topic: t}, nil
}

// Publishers returns the number of advertised, unclosed publishers.
func (t *Topic[T]) Publishers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.publishers
}

// Subscribers returns the number of open subscriptions.
func (t *Topic[T]) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Close closes the topic and every subscription on it.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	subs := t.subs
	t.subs = make(map[*Subscription[T]]struct{})
	t.closed = true
	t.mu.Unlock()

	for s := range subs {
		s.markClosed()
	}
}

func (t *Topic[T]) unsubscribe(s *Subscription[T]) {
	t.mu.Lock()
	delete(t.subs, s)
	t.mu.Unlock()
}

// Publisher is an advertised handle on a topic.
type Publisher[T any] struct {
	topic *Topic[T]
	once  sync.Once
	mu    sync.Mutex
	done  bool
}

// Publish delivers v unless the publisher was closed.
func (p *Publisher[T]) Publish(v T) {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done {
		return
	}
	p.topic.Publish(v)
}

// Close unadvertises the publisher. Safe to call more than once.
func (p *Publisher[T]) Close() error {
	p.once.Do(func() {
		p.mu.Lock()
		p.done = true
		p.mu.Unlock()

		p.topic.mu.Lock()
		p.topic.publishers--
		p.topic.mu.Unlock()
	})
	return nil
}

// Subscription is one subscriber's queue on a topic.
type Subscription[T any] struct {
	topic   *Topic[T]
	mu      sync.Mutex
	queue   []T
	dropped uint64
	closed  bool
	notify  chan struct{}
}

// push appends v, dropping the oldest value when the queue is full.
func (s *Subscription[T]) push(v T, depth int) (dropped bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if len(s.queue) >= depth {
		copy(s.queue, s.queue[1:])
		s.queue = s.queue[:len(s.queue)-1]
		s.dropped++
		dropped = true
	}
	s.queue = append(s.queue, v)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return dropped
}

// Next pops the oldest pending value without blocking.
func (s *Subscription[T]) Next() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if s.closed || len(s.queue) == 0 {
		return zero, false
	}
	v := s.queue[0]
	copy(s.queue, s.queue[1:])
	s.queue[len(s.queue)-1] = zero
	s.queue = s.queue[:len(s.queue)-1]
	return v, true
}

// Updated reports whether a value is pending.
func (s *Subscription[T]) Updated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && len(s.queue) > 0
}

// Wait blocks until a value is pending, the subscription is closed, or ctx
// is done.
func (s *Subscription[T]) Wait(ctx context.Context) (T, error) {
	for {
		if v, ok := s.Next(); ok {
			return v, nil
		}
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			var zero T
			return zero, ErrClosed
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-s.notify:
		}
	}
}

// Dropped returns how many values were discarded because the queue was full.
func (s *Subscription[T]) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close unsubscribes. Pending values are discarded. Safe to call more than once.
func (s *Subscription[T]) Close() error {
	s.topic.unsubscribe(s)
	s.markClosed()
	return nil
}

func (s *Subscription[T]) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
