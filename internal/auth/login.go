// Package auth implements the login flow the navigation guard runs when a
// protected view is requested without a session token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"qpanel/internal/logging"
	"qpanel/internal/session"
)

// ErrNoPassword means no password is known, so the user has to enter one on
// the login view.
var ErrNoPassword = errors.New("no panel password available")

// TokenRequester exchanges a password for a token. *panel.Client satisfies it.
type TokenRequester interface {
	RequestToken(ctx context.Context, password string) (session.Token, error)
}

// PasswordSource supplies the panel password.
type PasswordSource interface {
	Password(ctx context.Context) (string, error)
}

// StaticPassword always answers with the same password, typically from
// config or the environment. Empty means unknown.
type StaticPassword string

// Password returns p, or ErrNoPassword when p is empty.
func (p StaticPassword) Password(context.Context) (string, error) {
	if p == "" {
		return "", ErrNoPassword
	}
	return string(p), nil
}

// RememberedPassword holds the last password that worked, so background
// logins can reuse what the user typed on the login view.
type RememberedPassword struct {
	mu       sync.RWMutex
	password string
	fallback PasswordSource
}

// NewRememberedPassword returns a source that falls back to fallback, which
// may be nil, until a password is remembered.
func NewRememberedPassword(fallback PasswordSource) *RememberedPassword {
	return &RememberedPassword{fallback: fallback}
}

// Remember stores password for later logins.
func (r *RememberedPassword) Remember(password string) {
	r.mu.Lock()
	r.password = password
	r.mu.Unlock()
}

// Forget drops the remembered password.
func (r *RememberedPassword) Forget() {
	r.Remember("")
}

// Password returns the remembered password or asks the fallback.
func (r *RememberedPassword) Password(ctx context.Context) (string, error) {
	r.mu.RLock()
	p := r.password
	r.mu.RUnlock()
	if p != "" {
		return p, nil
	}
	if r.fallback == nil {
		return "", ErrNoPassword
	}
	return r.fallback.Password(ctx)
}

// PasswordLogin is a guard.LoginFlow posting a password to the panel.
type PasswordLogin struct {
	client   TokenRequester
	password PasswordSource
}

// NewPasswordLogin creates the flow.
func NewPasswordLogin(client TokenRequester, password PasswordSource) *PasswordLogin {
	return &PasswordLogin{client: client, password: password}
}

// Login fetches the password and exchanges it for a token. It does not store
// the token; the guard decides whether the result still applies.
func (l *PasswordLogin) Login(ctx context.Context) (session.Token, error) {
	log := logging.Get(logging.CategorySession)

	password, err := l.password.Password(ctx)
	if err != nil {
		log.Debugw("login skipped", "reason", err)
		return session.NoToken, err
	}
	token, err := l.client.RequestToken(ctx, password)
	if err != nil {
		log.Infow("login rejected", "error", err)
		return session.NoToken, fmt.Errorf("request token: %w", err)
	}
	log.Info("login succeeded")
	return token, nil
}

// SignIn exchanges an interactively entered password for a token, stores
// it in tokens, and remembers the password for later background logins.
func SignIn(ctx context.Context, client TokenRequester, tokens *session.Holder, remember *RememberedPassword, password string) error {
	if password == "" {
		return ErrNoPassword
	}
	token, err := client.RequestToken(ctx, password)
	if err != nil {
		return err
	}
	if !token.Present() {
		return errors.New("server returned an empty token")
	}
	tokens.SetToken(token)
	if remember != nil {
		remember.Remember(password)
	}
	logging.Get(logging.CategorySession).Info("signed in")
	return nil
}
