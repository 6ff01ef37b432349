package ui

import (
	"fmt"
	"strconv"
	"strings"

	"qpanel/internal/state"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type versionEdit int

const (
	editNone versionEdit = iota
	editWeight
	editURLParam
)

// VersionsPage lists deployed versions and edits their traffic split.
// Edits stay local until saved.
type VersionsPage struct {
	styles Styles
	width  int
	height int

	table table.Model
	data  state.VersionsView

	edit    versionEdit
	editing string
	input   textinput.Model
	err     string
}

// NewVersionsPage creates the versions page.
func NewVersionsPage(styles Styles) VersionsPage {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Version", Width: 24},
			{Title: "Strategy", Width: 12},
			{Title: "Value", Width: 20},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	in := textinput.New()
	in.CharLimit = 64
	in.Width = 30
	return VersionsPage{styles: styles, table: t, input: in}
}

// SetData shows a fresh snapshot, keeping the cursor where it was.
func (p *VersionsPage) SetData(v state.VersionsView) {
	p.data = v
	rows := make([]table.Row, 0, len(v.List))
	for _, ver := range v.List {
		rows = append(rows, table.Row{ver.Name, strategyLabel(ver.Selection), strategyValue(ver)})
	}
	p.table.SetRows(rows)
	if c := p.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		p.table.SetCursor(len(rows) - 1)
	}
}

func strategyLabel(s state.Selection) string {
	if s == state.SelectionURLParam {
		return "url param"
	}
	return "weight"
}

func strategyValue(v state.Version) string {
	if v.Selection == state.SelectionURLParam {
		return v.URLParam
	}
	return strconv.FormatUint(uint64(v.Weight), 10)
}

// Selected returns the version under the cursor.
func (p VersionsPage) Selected() (state.Version, bool) {
	i := p.table.Cursor()
	if i < 0 || i >= len(p.data.List) {
		return state.Version{}, false
	}
	return p.data.List[i], true
}

// Editing reports whether the page captures key input.
func (p VersionsPage) Editing() bool {
	return p.edit != editNone
}

func (p *VersionsPage) startEdit(kind versionEdit) tea.Cmd {
	v, ok := p.Selected()
	if !ok {
		return nil
	}
	p.edit = kind
	p.editing = v.Name
	p.err = ""
	switch kind {
	case editWeight:
		p.input.Placeholder = "weight, 0-65535"
		p.input.SetValue("")
		if v.Selection == state.SelectionWeight {
			p.input.SetValue(strconv.FormatUint(uint64(v.Weight), 10))
		}
	case editURLParam:
		p.input.Placeholder = "query parameter"
		p.input.SetValue(v.URLParam)
	}
	p.input.CursorEnd()
	return p.input.Focus()
}

func (p *VersionsPage) stopEdit() {
	p.edit = editNone
	p.editing = ""
	p.input.Blur()
}

func (p *VersionsPage) submit() tea.Cmd {
	value := strings.TrimSpace(p.input.Value())
	msg := setStrategyMsg{name: p.editing}
	switch p.edit {
	case editWeight:
		w, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			p.err = fmt.Sprintf("weight must be a number between 0 and 65535, got %q", value)
			return nil
		}
		msg.selection = state.SelectionWeight
		msg.weight = uint16(w)
	case editURLParam:
		if value == "" {
			p.err = "url parameter must not be empty"
			return nil
		}
		msg.selection = state.SelectionURLParam
		msg.urlParam = value
	}
	p.stopEdit()
	return emit(msg)
}

// Update handles messages.
func (p VersionsPage) Update(msg tea.Msg) (VersionsPage, tea.Cmd) {
	var cmd tea.Cmd

	if key, ok := msg.(tea.KeyMsg); ok {
		if p.Editing() {
			switch key.String() {
			case "esc":
				p.stopEdit()
				return p, nil
			case "enter":
				return p, p.submit()
			}
			p.input, cmd = p.input.Update(msg)
			return p, cmd
		}

		switch key.String() {
		case "w":
			return p, p.startEdit(editWeight)
		case "u":
			return p, p.startEdit(editURLParam)
		case "s":
			if p.data.Changed {
				return p, emit(saveVersionsMsg{})
			}
			return p, nil
		case "x", "delete":
			if v, ok := p.Selected(); ok {
				return p, emit(deleteVersionMsg{name: v.Name})
			}
			return p, nil
		}
	}

	p.table, cmd = p.table.Update(msg)
	return p, cmd
}

// View renders the page.
func (p VersionsPage) View() string {
	var sb strings.Builder

	sb.WriteString(p.styles.Title.Render("Versions"))
	if p.data.Changed {
		sb.WriteString("  ")
		sb.WriteString(p.styles.Badge.Render("unsaved changes"))
	}
	sb.WriteString("\n")

	if len(p.data.List) == 0 {
		sb.WriteString(p.styles.Muted.Render("No versions deployed."))
		sb.WriteString("\n")
	} else {
		sb.WriteString(p.table.View())
		sb.WriteString("\n")
	}

	if p.Editing() {
		label := "Weight"
		if p.edit == editURLParam {
			label = "URL param"
		}
		sb.WriteString("\n")
		sb.WriteString(p.styles.Bold.Render(fmt.Sprintf("%s for %s", label, p.editing)))
		sb.WriteString("\n")
		sb.WriteString(p.styles.Focused.Render(p.input.View()))
		sb.WriteString("\n")
	}
	if p.err != "" {
		sb.WriteString(p.styles.Error.Render(p.err))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	if p.Editing() {
		sb.WriteString(p.styles.Muted.Render("[enter] apply  [esc] cancel"))
	} else {
		sb.WriteString(p.styles.Muted.Render("[w] weight  [u] url param  [s] save  [x] delete"))
	}
	return sb.String()
}

// SetSize updates the size.
func (p *VersionsPage) SetSize(w, h int) {
	p.width = w
	p.height = h
	p.table.SetWidth(w - 4)
	if h > 10 {
		p.table.SetHeight(h - 8)
	}
}
