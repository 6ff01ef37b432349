package guard

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrSuperseded is returned by Wait when a newer navigation replaced the
	// attempt before it resolved.
	ErrSuperseded = errors.New("navigation superseded")
	// ErrCancelled is returned by Wait when the attempt was cancelled by its
	// owner or the guard was closed.
	ErrCancelled = errors.New("navigation cancelled")
)

// State is a step of the guard state machine for one attempt.
type State int

const (
	StateIdle State = iota
	StateCheckingAuth
	StateAttemptingLogin
	StateResolvedAllow
	StateResolvedRedirect
	// StateDiscarded marks an attempt whose pending result was dropped.
	StateDiscarded
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCheckingAuth:
		return "checking_auth"
	case StateAttemptingLogin:
		return "attempting_login"
	case StateResolvedAllow:
		return "resolved_allow"
	case StateResolvedRedirect:
		return "resolved_redirect_to_login"
	case StateDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Outcome is the navigation verdict.
type Outcome int

const (
	Allow Outcome = iota
	RedirectToLogin
)

// String returns the outcome name.
func (o Outcome) String() string {
	if o == RedirectToLogin {
		return "redirect_to_login"
	}
	return "allow"
}

// Decision is the resolved result of an attempt.
type Decision struct {
	Outcome Outcome
	// Route is the originally requested route.
	Route Route
	// Location is where the console should end up: the route path on Allow,
	// the login path carrying the route path on RedirectToLogin.
	Location string
	// LoginAttempted is true when this attempt invoked the login flow itself.
	LoginAttempted bool
	// Err is the login failure behind a redirect, if any.
	Err error
}

// Transition is reported to the guard observer on every state change.
type Transition struct {
	AttemptID string
	Route     Route
	From, To  State
}

// Attempt is the handle of one navigation. Its result is bound to the
// handle, so a late login can never resolve a different navigation.
type Attempt struct {
	id     string
	route  Route
	guard  *Guard
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	state    State
	decision Decision
	err      error
}

func newAttempt(g *Guard, ctx context.Context, route Route) *Attempt {
	actx, cancel := context.WithCancel(ctx)
	return &Attempt{
		id:     uuid.NewString(),
		route:  route,
		guard:  g,
		ctx:    actx,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateIdle,
	}
}

// ID uniquely identifies the attempt.
func (a *Attempt) ID() string { return a.id }

// Route is the requested route.
func (a *Attempt) Route() Route { return a.route }

// State returns the current step.
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Done is closed once the attempt is resolved or discarded.
func (a *Attempt) Done() <-chan struct{} { return a.done }

// Decision returns the verdict once resolved. ok is false while pending and
// for discarded attempts.
func (a *Attempt) Decision() (d Decision, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case StateResolvedAllow, StateResolvedRedirect:
		return a.decision, true
	}
	return Decision{}, false
}

// Wait blocks until the attempt finishes or ctx is done.
func (a *Attempt) Wait(ctx context.Context) (Decision, error) {
	select {
	case <-a.done:
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateDiscarded {
		return Decision{}, a.err
	}
	return a.decision, nil
}

// Cancel discards the attempt if it is still pending.
func (a *Attempt) Cancel() {
	a.discard(ErrCancelled)
}

// setState must be called with a.mu held.
func (a *Attempt) setState(to State) {
	from := a.state
	a.state = to
	a.guard.report(Transition{AttemptID: a.id, Route: a.route, From: from, To: to})
}

// step advances a pending attempt. It reports false if the attempt was
// already resolved or discarded.
func (a *Attempt) step(to State) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.pending() {
		return false
	}
	a.setState(to)
	return true
}

// resolve must be called with a.mu held and the attempt still pending.
func (a *Attempt) resolve(d Decision) {
	if d.Outcome == Allow {
		a.setState(StateResolvedAllow)
	} else {
		a.setState(StateResolvedRedirect)
	}
	a.decision = d
	close(a.done)
	a.cancel()
}

func (a *Attempt) pending() bool {
	switch a.state {
	case StateResolvedAllow, StateResolvedRedirect, StateDiscarded:
		return false
	}
	return true
}

func (a *Attempt) discard(reason error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.pending() {
		return
	}
	a.err = reason
	a.setState(StateDiscarded)
	close(a.done)
	a.cancel()
}
