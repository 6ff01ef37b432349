package ui

import (
	"context"
	"sync"
	"time"

	"qpanel/internal/state"
)

// DefaultRefreshDuration is the quiet period before a refresh runs.
const DefaultRefreshDuration = 250 * time.Millisecond

// RefreshDebouncer collects refresh requests for store topics. Once requests
// stop arriving for the quiet period, the handler of the last request gets
// every requested topic once, in AllTopics order.
//
// The debouncer is bound to the console's context: when it ends the pending
// refresh is dropped and later requests are ignored.
type RefreshDebouncer struct {
	ctx   context.Context
	quiet time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64 // bumped on every request and cancel; stale timers check it
	pending map[state.Topic]bool
	handler func([]state.Topic)
}

// NewRefreshDebouncer creates a refresh debouncer living as long as ctx.
func NewRefreshDebouncer(ctx context.Context, quiet time.Duration) *RefreshDebouncer {
	rd := &RefreshDebouncer{
		ctx:     ctx,
		quiet:   quiet,
		pending: make(map[state.Topic]bool),
	}
	context.AfterFunc(ctx, rd.Cancel)
	return rd
}

// Request adds topics to the pending refresh and restarts the quiet period.
func (rd *RefreshDebouncer) Request(handler func([]state.Topic), topics ...state.Topic) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.ctx.Err() != nil {
		return
	}
	for _, t := range topics {
		rd.pending[t] = true
	}
	rd.handler = handler
	rd.gen++
	gen := rd.gen
	if rd.timer != nil {
		rd.timer.Stop()
	}
	rd.timer = time.AfterFunc(rd.quiet, func() { rd.fire(gen) })
}

// Pending lists the topics waiting for the quiet period, in AllTopics order.
func (rd *RefreshDebouncer) Pending() []state.Topic {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return rd.due()
}

// Cancel drops the pending refresh.
func (rd *RefreshDebouncer) Cancel() {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.gen++
	if rd.timer != nil {
		rd.timer.Stop()
		rd.timer = nil
	}
	rd.pending = make(map[state.Topic]bool)
	rd.handler = nil
}

func (rd *RefreshDebouncer) fire(gen uint64) {
	rd.mu.Lock()
	if gen != rd.gen || rd.ctx.Err() != nil {
		rd.mu.Unlock()
		return
	}
	due, handler := rd.due(), rd.handler
	rd.pending = make(map[state.Topic]bool)
	rd.handler = nil
	rd.timer = nil
	rd.mu.Unlock()

	if len(due) > 0 && handler != nil {
		handler(due)
	}
}

// due must be called with rd.mu held.
func (rd *RefreshDebouncer) due() []state.Topic {
	var out []state.Topic
	for _, t := range state.AllTopics {
		if rd.pending[t] {
			out = append(out, t)
		}
	}
	return out
}
