package ui

import (
	"strconv"
	"strings"

	"qpanel/internal/state"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ProxiesPage lists reverse proxies in server order and adds or removes
// them.
type ProxiesPage struct {
	styles Styles
	width  int
	height int

	table table.Model
	data  []state.ReverseProxy

	adding bool
	field  int // 0 prefix, 1 target
	prefix textinput.Model
	target textinput.Model
	err    string
}

// NewProxiesPage creates the proxies page.
func NewProxiesPage(styles Styles) ProxiesPage {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 6},
			{Title: "Prefix", Width: 24},
			{Title: "Target", Width: 40},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	prefix := textinput.New()
	prefix.Placeholder = "/api"
	prefix.CharLimit = 256
	prefix.Width = 30

	target := textinput.New()
	target.Placeholder = "http://localhost:8080"
	target.CharLimit = 512
	target.Width = 40

	return ProxiesPage{styles: styles, table: t, prefix: prefix, target: target}
}

// SetData shows a fresh listing.
func (p *ProxiesPage) SetData(list []state.ReverseProxy) {
	p.data = list
	rows := make([]table.Row, 0, len(list))
	for _, rp := range list {
		rows = append(rows, table.Row{strconv.Itoa(rp.ID), rp.Prefix, rp.Target})
	}
	p.table.SetRows(rows)
	if c := p.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		p.table.SetCursor(len(rows) - 1)
	}
}

// Selected returns the proxy under the cursor.
func (p ProxiesPage) Selected() (state.ReverseProxy, bool) {
	i := p.table.Cursor()
	if i < 0 || i >= len(p.data) {
		return state.ReverseProxy{}, false
	}
	return p.data[i], true
}

// Editing reports whether the add form captures key input.
func (p ProxiesPage) Editing() bool {
	return p.adding
}

func (p *ProxiesPage) openForm() tea.Cmd {
	p.adding = true
	p.field = 0
	p.err = ""
	p.prefix.SetValue("")
	p.target.SetValue("")
	p.target.Blur()
	return p.prefix.Focus()
}

func (p *ProxiesPage) closeForm() {
	p.adding = false
	p.prefix.Blur()
	p.target.Blur()
}

func (p *ProxiesPage) switchField() tea.Cmd {
	p.field = 1 - p.field
	if p.field == 0 {
		p.target.Blur()
		return p.prefix.Focus()
	}
	p.prefix.Blur()
	return p.target.Focus()
}

func (p *ProxiesPage) submit() tea.Cmd {
	prefix := strings.TrimSpace(p.prefix.Value())
	target := strings.TrimSpace(p.target.Value())
	switch {
	case prefix == "":
		p.err = "prefix must not be empty"
		return nil
	case target == "":
		p.err = "target must not be empty"
		return nil
	}
	p.closeForm()
	return emit(addProxyMsg{prefix: prefix, target: target})
}

// Update handles messages.
func (p ProxiesPage) Update(msg tea.Msg) (ProxiesPage, tea.Cmd) {
	var cmd tea.Cmd

	if key, ok := msg.(tea.KeyMsg); ok {
		if p.adding {
			switch key.String() {
			case "esc":
				p.closeForm()
				return p, nil
			case "tab", "shift+tab":
				return p, p.switchField()
			case "enter":
				if p.field == 0 {
					return p, p.switchField()
				}
				return p, p.submit()
			}
			if p.field == 0 {
				p.prefix, cmd = p.prefix.Update(msg)
			} else {
				p.target, cmd = p.target.Update(msg)
			}
			return p, cmd
		}

		switch key.String() {
		case "a":
			return p, p.openForm()
		case "x", "delete":
			if rp, ok := p.Selected(); ok {
				return p, emit(removeProxyMsg{id: rp.ID})
			}
			return p, nil
		}
	}

	p.table, cmd = p.table.Update(msg)
	return p, cmd
}

// View renders the page.
func (p ProxiesPage) View() string {
	var sb strings.Builder

	sb.WriteString(p.styles.Title.Render("Reverse proxies"))
	sb.WriteString("\n")
	if len(p.data) == 0 {
		sb.WriteString(p.styles.Muted.Render("No reverse proxies."))
		sb.WriteString("\n")
	} else {
		sb.WriteString(p.table.View())
		sb.WriteString("\n")
	}

	if p.adding {
		sb.WriteString("\n")
		sb.WriteString(p.inputView("Prefix", p.prefix, p.field == 0))
		sb.WriteString(p.inputView("Target", p.target, p.field == 1))
	}
	if p.err != "" {
		sb.WriteString(p.styles.Error.Render(p.err))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	if p.adding {
		sb.WriteString(p.styles.Muted.Render("[tab] next field  [enter] add  [esc] cancel"))
	} else {
		sb.WriteString(p.styles.Muted.Render("[a] add  [x] delete"))
	}
	return sb.String()
}

func (p ProxiesPage) inputView(label string, in textinput.Model, focused bool) string {
	box := p.styles.Input
	if focused {
		box = p.styles.Focused
	}
	return p.styles.Bold.Render(label) + "\n" + box.Render(in.View()) + "\n"
}

// SetSize updates the size.
func (p *ProxiesPage) SetSize(w, h int) {
	p.width = w
	p.height = h
	p.table.SetWidth(w - 4)
	if h > 12 {
		p.table.SetHeight(h - 10)
	}
}
