// Package guard authorizes navigation between console views.
//
// Every navigation is an Attempt. Protected routes require a session token;
// when none is held the guard runs the login flow and suspends the navigation
// until it answers. Public routes are never blocked, but without a token the
// guard starts a speculative login in the background so a known user ends up
// signed in anyway.
//
// Starting a navigation supersedes the previous one if it is still waiting on
// a login: the old attempt is discarded and its late result is dropped, token
// included.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"qpanel/internal/session"
)

// ErrNoToken is reported when the login flow succeeds without a credential.
var ErrNoToken = errors.New("login returned no token")

// LoginFlow performs the credential exchange. It must return when ctx is done.
type LoginFlow interface {
	Login(ctx context.Context) (session.Token, error)
}

// LoginFunc adapts a function to LoginFlow.
type LoginFunc func(ctx context.Context) (session.Token, error)

// Login calls f.
func (f LoginFunc) Login(ctx context.Context) (session.Token, error) { return f(ctx) }

// Options tune a Guard.
type Options struct {
	// LoginTimeout bounds a single login call. Zero means no bound beyond the
	// attempt's own context.
	LoginTimeout time.Duration
	// DisableSpeculative turns off background logins on public routes.
	DisableSpeculative bool
	// Observer receives every state transition. It runs synchronously while
	// the attempt is locked and must not call back into the attempt.
	Observer func(Transition)
}

// Guard decides navigations. Create it with New; Close releases it.
type Guard struct {
	tokens *session.Holder
	login  LoginFlow
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	latest      *Attempt
	speculative context.CancelFunc
	specSeq     uint64
	closed      bool
}

// New creates a guard reading and writing tokens.
func New(tokens *session.Holder, login LoginFlow, opts Options) *Guard {
	ctx, cancel := context.WithCancel(context.Background())
	return &Guard{
		tokens: tokens,
		login:  login,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (g *Guard) report(t Transition) {
	if g.opts.Observer != nil {
		g.opts.Observer(t)
	}
}

// Navigate starts an attempt to reach route. Unless a login is needed the
// returned attempt is already resolved; otherwise it resolves when the login
// flow answers. ctx cancellation discards the attempt.
func (g *Guard) Navigate(ctx context.Context, route Route) *Attempt {
	a := newAttempt(g, ctx, route)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		a.discard(ErrCancelled)
		return a
	}
	prev := g.latest
	g.latest = a
	g.mu.Unlock()

	if prev != nil {
		prev.discard(ErrSuperseded)
	}
	if a.ctx.Err() != nil {
		a.discard(ErrCancelled)
		return a
	}

	if !a.step(StateCheckingAuth) {
		return a
	}
	hasToken := g.tokens.Authenticated()

	switch {
	case hasToken:
		g.allow(a, false)
	case route.RequiresAuth:
		g.cancelSpeculative()
		if a.step(StateAttemptingLogin) {
			g.wg.Add(1)
			go g.runLogin(a)
		}
	default:
		g.allow(a, false)
		if !g.opts.DisableSpeculative {
			g.startSpeculative()
		}
	}
	return a
}

func (g *Guard) allow(a *Attempt, loginAttempted bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.pending() {
		return
	}
	a.resolve(Decision{Outcome: Allow, Route: a.route, Location: a.route.Path, LoginAttempted: loginAttempted})
}

func (g *Guard) runLogin(a *Attempt) {
	defer g.wg.Done()

	stopGuard := context.AfterFunc(g.ctx, a.Cancel)
	defer stopGuard()
	stopAttempt := context.AfterFunc(a.ctx, a.Cancel)
	defer stopAttempt()

	token, err := g.callLogin(a.ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.pending() {
		return
	}
	if a.ctx.Err() != nil {
		// cancelled while the login was in flight; never apply its result
		a.err = ErrCancelled
		a.setState(StateDiscarded)
		close(a.done)
		return
	}
	if err == nil {
		g.tokens.SetToken(token)
		a.resolve(Decision{Outcome: Allow, Route: a.route, Location: a.route.Path, LoginAttempted: true})
		return
	}
	a.resolve(Decision{
		Outcome:        RedirectToLogin,
		Route:          a.route,
		Location:       LoginLocation(a.route.Path),
		LoginAttempted: true,
		Err:            err,
	})
}

// callLogin runs the flow with the configured timeout and normalises an
// empty token into an error.
func (g *Guard) callLogin(ctx context.Context) (token session.Token, err error) {
	if g.opts.LoginTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.LoginTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			token, err = session.NoToken, fmt.Errorf("login flow panicked: %v", r)
		}
	}()
	token, err = g.login.Login(ctx)
	if err != nil {
		return session.NoToken, fmt.Errorf("login: %w", err)
	}
	if !token.Present() {
		return session.NoToken, ErrNoToken
	}
	return token, nil
}

func (g *Guard) startSpeculative() {
	g.mu.Lock()
	if g.speculative != nil || g.closed {
		g.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(g.ctx)
	g.specSeq++
	seq := g.specSeq
	g.speculative = cancel
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		defer cancel()
		token, err := g.callLogin(ctx)

		g.mu.Lock()
		defer g.mu.Unlock()
		if g.specSeq == seq {
			g.speculative = nil
		}
		if err != nil || ctx.Err() != nil {
			return
		}
		if !g.tokens.Authenticated() {
			g.tokens.SetToken(token)
		}
	}()
}

func (g *Guard) cancelSpeculative() {
	g.mu.Lock()
	cancel := g.speculative
	g.speculative = nil
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SpeculativePending reports whether a background login is in flight.
func (g *Guard) SpeculativePending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.speculative != nil
}

// Logout drops the token and any login that could restore it: the
// speculative one and a protected attempt still waiting on the flow.
func (g *Guard) Logout() {
	g.cancelSpeculative()
	g.mu.Lock()
	latest := g.latest
	g.mu.Unlock()
	if latest != nil {
		latest.discard(ErrCancelled)
	}
	// cleared last so a login that won the race above is still undone
	g.tokens.Clear()
}

// Close discards every pending attempt and waits for login goroutines.
func (g *Guard) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		g.wg.Wait()
		return
	}
	g.closed = true
	latest := g.latest
	g.mu.Unlock()

	g.cancel()
	if latest != nil {
		latest.discard(ErrCancelled)
	}
	g.wg.Wait()
}
