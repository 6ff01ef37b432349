// Package session holds the authentication credential for the lifetime of one
// console process.
//
// The token is opaque: a non-empty value is trusted as "authenticated" and the
// server remains the authority on whether it is still valid. Nothing here is
// persisted; a restart always begins unauthenticated.
package session

import "sync"

// Token is an opaque bearer credential issued by the panel server.
type Token string

// NoToken is the absent sentinel. A holder that was never set returns it.
const NoToken Token = ""

// Present reports whether t carries a credential.
func (t Token) Present() bool {
	return t != NoToken
}

// String returns the raw credential.
func (t Token) String() string {
	return string(t)
}

// Holder is the single cell that owns the current token.
// The zero value is ready to use and unauthenticated.
type Holder struct {
	mu    sync.RWMutex
	token Token
}

// NewHolder creates an empty holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Token returns the current credential, or NoToken.
func (h *Holder) Token() Token {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// SetToken replaces the current credential. No validation is performed.
func (h *Holder) SetToken(t Token) {
	h.mu.Lock()
	h.token = t
	h.mu.Unlock()
}

// Clear drops the credential (explicit logout).
func (h *Holder) Clear() {
	h.SetToken(NoToken)
}

// Authenticated reports whether a credential is currently held.
func (h *Holder) Authenticated() bool {
	return h.Token().Present()
}
