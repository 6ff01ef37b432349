package ui

import (
	"strings"
	"testing"
	"time"

	"qpanel/internal/guard"
	"qpanel/internal/state"

	tea "github.com/charmbracelet/bubbletea"
)

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestVersionsPageEditWeight(t *testing.T) {
	page := NewVersionsPage(DefaultStyles())
	page.SetData(state.VersionsView{List: []state.Version{
		{Name: "stable", Selection: state.SelectionWeight, Weight: 3},
		{Name: "beta", Selection: state.SelectionURLParam, URLParam: "beta"},
	}})

	view := page.View()
	if !strings.Contains(view, "stable") || !strings.Contains(view, "beta") {
		t.Fatalf("expected both versions rendered:\n%s", view)
	}

	page, _ = page.Update(keyRunes("w"))
	if !page.Editing() {
		t.Fatalf("expected weight editor to open")
	}
	if got := page.input.Value(); got != "3" {
		t.Fatalf("expected current weight prefilled, got %q", got)
	}

	page.input.SetValue("70000")
	page, cmd := page.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatalf("out of range weight must not be applied")
	}
	if !strings.Contains(page.View(), "between 0 and 65535") {
		t.Fatalf("expected validation error:\n%s", page.View())
	}

	page.input.SetValue("12")
	page, cmd = page.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatalf("expected strategy request")
	}
	msg, ok := cmd().(setStrategyMsg)
	if !ok {
		t.Fatalf("expected setStrategyMsg")
	}
	if msg.name != "stable" || msg.selection != state.SelectionWeight || msg.weight != 12 {
		t.Fatalf("unexpected request %+v", msg)
	}
	if page.Editing() {
		t.Fatalf("editor should close after apply")
	}
}

func TestVersionsPageSaveOnlyWhenChanged(t *testing.T) {
	page := NewVersionsPage(DefaultStyles())
	page.SetData(state.VersionsView{List: []state.Version{{Name: "a", Selection: state.SelectionWeight}}})

	if _, cmd := page.Update(keyRunes("s")); cmd != nil {
		t.Fatalf("save without changes should do nothing")
	}

	page.SetData(state.VersionsView{List: []state.Version{{Name: "a", Selection: state.SelectionWeight}}, Changed: true})
	if !strings.Contains(page.View(), "unsaved changes") {
		t.Fatalf("expected unsaved badge")
	}
	_, cmd := page.Update(keyRunes("s"))
	if cmd == nil {
		t.Fatalf("expected save request")
	}
	if _, ok := cmd().(saveVersionsMsg); !ok {
		t.Fatalf("expected saveVersionsMsg")
	}
}

func TestVersionsPageDelete(t *testing.T) {
	page := NewVersionsPage(DefaultStyles())
	if _, cmd := page.Update(keyRunes("x")); cmd != nil {
		t.Fatalf("delete on empty list should do nothing")
	}
	page.SetData(state.VersionsView{List: []state.Version{{Name: "old"}}})
	_, cmd := page.Update(keyRunes("x"))
	if msg, ok := cmd().(deleteVersionMsg); !ok || msg.name != "old" {
		t.Fatalf("expected delete of old, got %#v", msg)
	}
}

func TestProxiesPageAddForm(t *testing.T) {
	page := NewProxiesPage(DefaultStyles())
	page.SetSize(100, 30)
	page.SetData([]state.ReverseProxy{{ID: 7, Prefix: "/api", Target: "http://backend"}})
	if !strings.Contains(page.View(), "http://backend") {
		t.Fatalf("expected proxy rendered:\n%s", page.View())
	}

	page, _ = page.Update(keyRunes("a"))
	if !page.Editing() {
		t.Fatalf("expected add form")
	}
	page.prefix.SetValue("/new")
	page, cmd := page.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if page.field != 1 {
		t.Fatalf("enter on prefix should move to target")
	}
	page, cmd = page.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil || !strings.Contains(page.View(), "target must not be empty") {
		t.Fatalf("expected target validation:\n%s", page.View())
	}

	page.target.SetValue(" http://new ")
	page, cmd = page.Update(tea.KeyMsg{Type: tea.KeyEnter})
	msg, ok := cmd().(addProxyMsg)
	if !ok || msg.prefix != "/new" || msg.target != "http://new" {
		t.Fatalf("unexpected request %#v", msg)
	}
	if page.Editing() {
		t.Fatalf("form should close after submit")
	}

	_, cmd = page.Update(keyRunes("x"))
	if rm, ok := cmd().(removeProxyMsg); !ok || rm.id != 7 {
		t.Fatalf("expected removal of proxy 7")
	}
}

func TestAnalyticsPageView(t *testing.T) {
	page := NewAnalyticsPage(DefaultStyles())
	page.SetSize(120, 40)
	if !strings.Contains(page.View(), "No window selected") {
		t.Fatalf("expected empty analytics view")
	}

	page.SetData(state.AnalyticsView{
		DateStart:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		DateEnd:     time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		TotalVisits: 42,
		Stats: []state.VersionStats{
			{Name: "stable", VisitCount: 40, AverageRequests: 2.5, AverageDuration: 90 * time.Second, BounceRate: 12.5},
		},
		Events: []state.EventPercents{
			{Event: "signup", Percents: []state.VersionPercent{{Version: "stable", Percent: 5}}},
		},
	})
	view := page.View()
	for _, want := range []string{"2024-03-01", "Total visits: 42", "stable", "1m30s", "signup", "5.0%"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	_, cmd := page.Update(keyRunes("["))
	if msg, ok := cmd().(shiftWindowMsg); !ok || msg.days != -WindowStep {
		t.Fatalf("expected window shift back")
	}
	_, cmd = page.Update(keyRunes("e"))
	if _, ok := cmd().(exportEventsMsg); !ok {
		t.Fatalf("expected export request")
	}
}

func TestEventsTableColumnsPerVersion(t *testing.T) {
	table := EventsTable([]state.EventPercents{
		{Event: "click", Percents: []state.VersionPercent{{Version: "a", Percent: 10}, {Version: "b", Percent: 20}}},
		{Event: "buy", Percents: []state.VersionPercent{{Version: "b", Percent: 1}}},
	})
	if got := strings.Join(table.Headers, ","); got != "Event,a,b" {
		t.Fatalf("headers = %s", got)
	}
	if got := strings.Join(table.Rows[1], ","); got != "buy,,1.0%" {
		t.Fatalf("row = %s", got)
	}
}

func TestLoginPageSubmit(t *testing.T) {
	page := NewLoginPage(DefaultStyles())
	page.Reset("/analytics", nil)
	if !strings.Contains(page.View(), "/analytics") {
		t.Fatalf("expected redirect target shown")
	}
	if _, cmd := page.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Fatalf("empty password must not be submitted")
	}

	page.input.SetValue("secret")
	page, cmd := page.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if msg, ok := cmd().(signInMsg); !ok || msg.password != "secret" {
		t.Fatalf("expected sign in request")
	}
	if strings.Contains(page.View(), "secret") {
		t.Fatalf("password must be masked")
	}
	if _, cmd := page.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Fatalf("no second submit while busy")
	}
}

func TestHelpMarkdown(t *testing.T) {
	md := HelpMarkdown(guard.QpacktRoutes())
	if !strings.Contains(md, "**/versions**") || !strings.Contains(md, "Requires sign in") {
		t.Fatalf("unexpected help:\n%s", md)
	}
	if strings.Contains(md, "**/login**") {
		t.Fatalf("login view should not be listed")
	}
	if strings.Contains(HelpMarkdown(guard.VadenRoutes()), "Requires sign in") {
		t.Fatalf("vaden views are all public")
	}

	page := NewHelpPage(NewStyles(LightTheme()), guard.QpacktRoutes())
	page.SetSize(80, 40)
	if !strings.Contains(page.View(), "qpanel") {
		t.Fatalf("expected rendered help:\n%s", page.View())
	}
}
