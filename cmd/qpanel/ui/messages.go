package ui

import (
	"qpanel/internal/guard"
	"qpanel/internal/state"

	tea "github.com/charmbracelet/bubbletea"
)

// Requests pages hand up to the app model, which owns every call into the
// store and the sync service.
type (
	setStrategyMsg struct {
		name      string
		selection state.Selection
		weight    uint16
		urlParam  string
	}
	saveVersionsMsg  struct{}
	deleteVersionMsg struct{ name string }
	addProxyMsg      struct{ prefix, target string }
	removeProxyMsg   struct{ id int }
	shiftWindowMsg   struct{ days int }
	exportEventsMsg  struct{}
	signInMsg        struct{ password string }
)

// Results of background work.
type (
	decisionMsg struct {
		attempt  *guard.Attempt
		path     string
		decision guard.Decision
		err      error
	}
	storeMsg struct {
		changes []state.Change
		err     error
	}
	loadedMsg struct {
		topics []state.Topic
		err    error
	}
	actionMsg struct {
		what string
		note string
		err  error
	}
	signedInMsg struct {
		target string
		err    error
	}
	loggedOutMsg struct{ err error }
	refreshMsg   struct{ topics []state.Topic }
	// authLostMsg is posted when the server rejected the session token.
	authLostMsg struct{}
)

func emit(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}
