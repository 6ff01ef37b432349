package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// SimpleTable renders static rows. The CLI prints it, pages embed it where
// no cursor is needed.
type SimpleTable struct {
	Title   string
	Headers []string
	Rows    [][]string
	// Empty is shown instead of the table when there are no rows.
	Empty string
	// Right lists the columns aligned to the right, usually numbers.
	Right map[int]bool
}

// NewSimpleTable creates a table with the given title and headers.
func NewSimpleTable(title string, headers ...string) *SimpleTable {
	return &SimpleTable{
		Title:   title,
		Headers: headers,
		Right:   make(map[int]bool),
	}
}

// AlignRight aligns the given columns to the right.
func (t *SimpleTable) AlignRight(cols ...int) *SimpleTable {
	for _, c := range cols {
		t.Right[c] = true
	}
	return t
}

// AddRow adds a row. Missing cells render empty, extra cells are dropped.
func (t *SimpleTable) AddRow(cells ...string) {
	row := make([]string, len(t.Headers))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

// View renders the table using the provided styles.
func (t *SimpleTable) View(styles Styles) string {
	var sb strings.Builder

	if t.Title != "" {
		sb.WriteString(styles.Title.Render(t.Title))
		sb.WriteString("\n")
	}
	if len(t.Rows) == 0 {
		if t.Empty != "" {
			sb.WriteString(styles.Muted.Render(t.Empty))
			sb.WriteString("\n")
		}
		return sb.String()
	}

	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	sep := styles.Muted.Render(" │ ")
	cell := func(style lipgloss.Style, i int, s string) string {
		st := style.Width(widths[i])
		if t.Right[i] {
			st = st.Align(lipgloss.Right)
		}
		return st.Render(s)
	}

	for i, h := range t.Headers {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(cell(styles.Bold, i, h))
	}
	sb.WriteString("\n")

	total := 3 * (len(widths) - 1)
	for _, w := range widths {
		total += w
	}
	sb.WriteString(styles.RenderDivider(total))
	sb.WriteString("\n")

	for _, row := range t.Rows {
		for i, c := range row {
			if i > 0 {
				sb.WriteString(sep)
			}
			sb.WriteString(cell(styles.Body, i, c))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
