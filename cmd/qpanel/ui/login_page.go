package ui

import (
	"errors"
	"strings"

	"qpanel/internal/auth"
	"qpanel/internal/panel"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// LoginPage asks for the panel password. After signing in the console
// continues to the view that was refused.
type LoginPage struct {
	styles Styles
	input  textinput.Model
	target string
	busy   bool
	err    string
}

// NewLoginPage creates the login page.
func NewLoginPage(styles Styles) LoginPage {
	in := textinput.New()
	in.Placeholder = "panel password"
	in.EchoMode = textinput.EchoPassword
	in.EchoCharacter = '•'
	in.CharLimit = 256
	in.Width = 30
	return LoginPage{styles: styles, input: in, target: "/"}
}

// Reset prepares the page for a new sign in that forwards to target. cause
// is the failure that brought the user here, if any.
func (p *LoginPage) Reset(target string, cause error) tea.Cmd {
	p.target = target
	p.busy = false
	p.input.SetValue("")
	p.err = loginError(cause)
	return p.input.Focus()
}

// Target is where the console goes after signing in.
func (p LoginPage) Target() string {
	return p.target
}

// Fail shows a failed sign in and lets the user retry.
func (p *LoginPage) Fail(err error) {
	p.busy = false
	p.input.SetValue("")
	p.err = loginError(err)
}

func loginError(err error) string {
	switch {
	case err == nil, errors.Is(err, auth.ErrNoPassword):
		return ""
	case panel.IsAuthError(err):
		return "Wrong password."
	default:
		return err.Error()
	}
}

// Update handles messages.
func (p LoginPage) Update(msg tea.Msg) (LoginPage, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.Type == tea.KeyEnter {
		if p.busy || p.input.Value() == "" {
			return p, nil
		}
		p.busy = true
		p.err = ""
		return p, emit(signInMsg{password: p.input.Value()})
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

// View renders the page.
func (p LoginPage) View() string {
	var sb strings.Builder
	sb.WriteString(p.styles.Title.Render("Sign in"))
	sb.WriteString("\n")
	if p.target != "" && p.target != "/" {
		sb.WriteString(p.styles.Subtitle.Render("to continue to " + p.target))
		sb.WriteString("\n\n")
	}
	sb.WriteString(p.styles.Focused.Render(p.input.View()))
	sb.WriteString("\n")
	switch {
	case p.busy:
		sb.WriteString(p.styles.Muted.Render("Signing in..."))
	case p.err != "":
		sb.WriteString(p.styles.Error.Render(p.err))
	}
	sb.WriteString("\n\n")
	sb.WriteString(p.styles.Muted.Render("[enter] sign in  [ctrl+c] quit"))
	return sb.String()
}
