// Package state is the application state container shared by every console
// page.
//
// Pages never own data. They read through getters, which return copies, and
// change state only through the named mutators, so each mutation has exactly
// one call site. Every mutation is announced to subscribers of its sub-state;
// pages re-read the getters when notified instead of polling the server.
package state

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	// ErrDuplicateVersion is returned when a version name is already present.
	ErrDuplicateVersion = errors.New("version already exists")
	// ErrEmptyVersionName is returned when adding a version without a name.
	ErrEmptyVersionName = errors.New("version name is empty")
	// ErrSubscriptionClosed is returned by Next after Close.
	ErrSubscriptionClosed = errors.New("subscription closed")
)

// Change announces that a sub-state was mutated. Seq grows monotonically
// across the whole store.
type Change struct {
	Topic Topic
	Seq   uint64
}

// Store is one application's state. Create it with New and pass it to
// whatever owns the pages; there is no package-level instance.
type Store struct {
	mu        sync.RWMutex
	seq       uint64
	versions  versionsState
	analytics AnalyticsView
	proxies   []ReverseProxy

	obsMu     sync.Mutex
	subs      map[*Subscription]struct{}
	callbacks []*callback
}

type versionsState struct {
	list    []Version
	changed bool
}

type callback struct {
	topic Topic
	fn    func(Change)
}

// New creates a store with every sub-state at its defaults.
func New() *Store {
	return &Store{
		subs: make(map[*Subscription]struct{}),
	}
}

// mutate applies fn under the write lock and, if fn reports a change,
// announces it after the lock is released.
func (s *Store) mutate(topic Topic, fn func() bool) {
	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return
	}
	s.seq++
	c := Change{Topic: topic, Seq: s.seq}
	s.mu.Unlock()

	s.publish(c)
}

func (s *Store) publish(c Change) {
	s.obsMu.Lock()
	subs := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	var fns []func(Change)
	for _, cb := range s.callbacks {
		if cb.topic == c.Topic {
			fns = append(fns, cb.fn)
		}
	}
	s.obsMu.Unlock()

	for _, sub := range subs {
		sub.deliver(c)
	}
	for _, fn := range fns {
		fn(c)
	}
}

// OnChange registers fn to run synchronously after every mutation of topic,
// in registration order. The returned func unregisters it.
func (s *Store) OnChange(topic Topic, fn func(Change)) (cancel func()) {
	cb := &callback{topic: topic, fn: fn}
	s.obsMu.Lock()
	s.callbacks = append(s.callbacks, cb)
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		for i, c := range s.callbacks {
			if c == cb {
				s.callbacks = append(s.callbacks[:i], s.callbacks[i+1:]...)
				return
			}
		}
	}
}

// Subscribe returns a subscription to the given topics, or to every topic
// when none are given.
func (s *Store) Subscribe(topics ...Topic) *Subscription {
	if len(topics) == 0 {
		topics = AllTopics
	}
	sub := &Subscription{
		store:   s,
		topics:  make(map[Topic]bool, len(topics)),
		pending: make(map[Topic]uint64),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, t := range topics {
		sub.topics[t] = true
	}

	s.obsMu.Lock()
	s.subs[sub] = struct{}{}
	s.obsMu.Unlock()
	return sub
}

func (s *Store) unsubscribe(sub *Subscription) {
	s.obsMu.Lock()
	delete(s.subs, sub)
	s.obsMu.Unlock()
}

// Subscription receives change notifications without ever blocking the
// mutator. Notifications for the same topic coalesce while unread; the reader
// re-reads the getter and so always sees the latest state.
type Subscription struct {
	store  *Store
	topics map[Topic]bool

	mu      sync.Mutex
	pending map[Topic]uint64
	closed  bool
	notify  chan struct{}
	done    chan struct{}
}

func (sub *Subscription) deliver(c Change) {
	if !sub.topics[c.Topic] {
		return
	}
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	if c.Seq > sub.pending[c.Topic] {
		sub.pending[c.Topic] = c.Seq
	}
	sub.mu.Unlock()

	select {
	case sub.notify <- struct{}{}:
	default:
	}
}

// C is signalled whenever changes are pending. Call Drain to collect them.
func (sub *Subscription) C() <-chan struct{} {
	return sub.notify
}

// Drain returns and clears the pending changes, ordered by Seq.
func (sub *Subscription) Drain() []Change {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.pending) == 0 {
		return nil
	}
	out := make([]Change, 0, len(sub.pending))
	for t, seq := range sub.pending {
		out = append(out, Change{Topic: t, Seq: seq})
	}
	clear(sub.pending)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Next blocks until at least one change is pending, the subscription is
// closed, or ctx is done.
func (sub *Subscription) Next(ctx context.Context) ([]Change, error) {
	for {
		if changes := sub.Drain(); len(changes) > 0 {
			return changes, nil
		}
		select {
		case <-sub.notify:
		case <-sub.done:
			return nil, ErrSubscriptionClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close stops delivery. It is safe to call more than once.
func (sub *Subscription) Close() {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.closed = true
	clear(sub.pending)
	close(sub.done)
	sub.mu.Unlock()
	sub.store.unsubscribe(sub)
}
