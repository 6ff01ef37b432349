package ui

import (
	"strings"

	"qpanel/internal/guard"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	tea "github.com/charmbracelet/bubbletea"
)

const helpIntro = `# qpanel

Admin console for a qpackt server.

## Keys

| Key | Action |
| --- | --- |
| 1-4 | switch view |
| ? | this help |
| r | reload the current view |
| L | sign out |
| q | quit |

## Views
`

var viewHelp = map[string]string{
	"root":      "Overview of versions, visits and proxies.",
	"versions":  "Traffic split of deployed versions. Edit a weight or url parameter, then save.",
	"analytics": "Visits and event percentages per version for a date window. Export events as CSV.",
	"proxies":   "Reverse proxies by path prefix.",
	"help":      "This page.",
}

// HelpMarkdown describes the views of routes.
func HelpMarkdown(routes guard.Table) string {
	var sb strings.Builder
	sb.WriteString(helpIntro)
	for _, r := range routes {
		text, ok := viewHelp[r.Name]
		if !ok {
			continue
		}
		sb.WriteString("\n- **" + r.Path + "**: " + text)
		if r.RequiresAuth {
			sb.WriteString(" *Requires sign in.*")
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

// HelpPage renders the help markdown with glamour.
type HelpPage struct {
	styles   Styles
	viewport viewport.Model
	markdown string
	width    int
}

// NewHelpPage creates the help page for routes.
func NewHelpPage(styles Styles, routes guard.Table) HelpPage {
	p := HelpPage{
		styles:   styles,
		viewport: viewport.New(80, 20),
		markdown: HelpMarkdown(routes),
		width:    80,
	}
	p.render()
	return p
}

func (p *HelpPage) render() {
	style := "light"
	if p.styles.Theme.IsDark {
		style = "dark"
	}
	wrap := p.width - 4
	if wrap < 20 {
		wrap = 20
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStylePath(style),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		p.viewport.SetContent(p.markdown)
		return
	}
	out, err := renderer.Render(p.markdown)
	if err != nil {
		out = p.markdown
	}
	p.viewport.SetContent(out)
}

// Update handles messages.
func (p HelpPage) Update(msg tea.Msg) (HelpPage, tea.Cmd) {
	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	return p, cmd
}

// View renders the page.
func (p HelpPage) View() string {
	return p.viewport.View()
}

// SetSize updates the size and re-renders for the new width.
func (p *HelpPage) SetSize(w, h int) {
	p.width = w
	p.viewport.Width = w
	if h > 2 {
		p.viewport.Height = h - 2
	}
	p.render()
}
