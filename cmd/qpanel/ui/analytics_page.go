package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"qpanel/internal/state"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// WindowStep is how far [ and ] move the analytics window.
const WindowStep = 7

// AnalyticsPage shows visit statistics and event percentages of the query
// window.
type AnalyticsPage struct {
	styles   Styles
	viewport viewport.Model
	data     state.AnalyticsView
	exported string
	width    int
	height   int
}

// NewAnalyticsPage creates the analytics page.
func NewAnalyticsPage(styles Styles) AnalyticsPage {
	return AnalyticsPage{
		styles:   styles,
		viewport: viewport.New(80, 20),
	}
}

// SetData shows a fresh snapshot.
func (p *AnalyticsPage) SetData(v state.AnalyticsView) {
	p.data = v
	p.render()
}

// SetExported records the last CSV export.
func (p *AnalyticsPage) SetExported(path string) {
	p.exported = path
	p.render()
}

func (p *AnalyticsPage) render() {
	var sb strings.Builder

	if p.data.DateStart.IsZero() {
		sb.WriteString(p.styles.Muted.Render("No window selected."))
		p.viewport.SetContent(sb.String())
		return
	}
	sb.WriteString(p.styles.Subtitle.Render(fmt.Sprintf("%s → %s",
		p.data.DateStart.Format(time.DateOnly), p.data.DateEnd.Format(time.DateOnly))))
	sb.WriteString("\n\n")
	sb.WriteString(p.styles.Bold.Render(fmt.Sprintf("Total visits: %d", p.data.TotalVisits)))
	sb.WriteString("\n\n")

	sb.WriteString(VisitsTable(p.data.Stats).View(p.styles))
	sb.WriteString("\n")
	sb.WriteString(EventsTable(p.data.Events).View(p.styles))

	if p.exported != "" {
		sb.WriteString("\n")
		sb.WriteString(p.styles.Success.Render("Exported " + p.exported))
	}
	p.viewport.SetContent(sb.String())
}

// VisitsTable renders per-version visit statistics.
func VisitsTable(stats []state.VersionStats) *SimpleTable {
	t := NewSimpleTable("Visits", "Version", "Visits", "Avg requests", "Avg duration", "Bounce rate").
		AlignRight(1, 2, 3, 4)
	t.Empty = "No visits in this window."
	for _, s := range stats {
		t.AddRow(
			s.Name,
			strconv.Itoa(s.VisitCount),
			strconv.FormatFloat(s.AverageRequests, 'f', 2, 64),
			s.AverageDuration.String(),
			strconv.FormatFloat(s.BounceRate, 'f', 1, 64)+"%",
		)
	}
	return t
}

// EventsTable renders one row per event and one column per version.
func EventsTable(events []state.EventPercents) *SimpleTable {
	var versions []string
	seen := make(map[string]bool)
	for _, e := range events {
		for _, p := range e.Percents {
			if !seen[p.Version] {
				seen[p.Version] = true
				versions = append(versions, p.Version)
			}
		}
	}

	t := NewSimpleTable("Events", append([]string{"Event"}, versions...)...)
	t.Empty = "No events in this window."
	for i := range versions {
		t.AlignRight(i + 1)
	}
	for _, e := range events {
		row := make([]string, len(versions)+1)
		row[0] = e.Event
		for _, p := range e.Percents {
			for i, v := range versions {
				if v == p.Version {
					row[i+1] = strconv.FormatFloat(p.Percent, 'f', 1, 64) + "%"
				}
			}
		}
		t.AddRow(row...)
	}
	return t
}

// Update handles messages.
func (p AnalyticsPage) Update(msg tea.Msg) (AnalyticsPage, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "[":
			return p, emit(shiftWindowMsg{days: -WindowStep})
		case "]":
			return p, emit(shiftWindowMsg{days: WindowStep})
		case "e":
			return p, emit(exportEventsMsg{})
		}
	}
	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	return p, cmd
}

// View renders the page.
func (p AnalyticsPage) View() string {
	var sb strings.Builder
	sb.WriteString(p.styles.Title.Render("Analytics"))
	sb.WriteString("\n")
	sb.WriteString(p.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(p.styles.Muted.Render("[ ] move window  [e] export events csv"))
	return sb.String()
}

// SetSize updates the size of the viewport.
func (p *AnalyticsPage) SetSize(w, h int) {
	p.width = w
	p.height = h
	p.viewport.Width = w
	if h > 6 {
		p.viewport.Height = h - 4
	}
	p.render()
}
