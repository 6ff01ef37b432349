package ui

import (
	"fmt"
	"strings"
	"time"

	"qpanel/internal/state"
)

// HomePage summarises every sub-state.
type HomePage struct {
	styles    Styles
	server    string
	variant   string
	versions  state.VersionsView
	analytics state.AnalyticsView
	proxies   []state.ReverseProxy
	showProxy bool
}

// NewHomePage creates the overview page. showProxies is false for consoles
// without a proxies view.
func NewHomePage(styles Styles, server, variant string, showProxies bool) HomePage {
	return HomePage{styles: styles, server: server, variant: variant, showProxy: showProxies}
}

// SetVersions updates the versions summary.
func (p *HomePage) SetVersions(v state.VersionsView) { p.versions = v }

// SetAnalytics updates the visits summary.
func (p *HomePage) SetAnalytics(v state.AnalyticsView) { p.analytics = v }

// SetProxies updates the proxies summary.
func (p *HomePage) SetProxies(list []state.ReverseProxy) { p.proxies = list }

// View renders the page.
func (p HomePage) View() string {
	var sb strings.Builder
	sb.WriteString(p.styles.Title.Render("Overview"))
	sb.WriteString("\n")
	sb.WriteString(p.styles.Subtitle.Render(fmt.Sprintf("%s (%s)", p.server, p.variant)))
	sb.WriteString("\n\n")

	line := func(label, value string) {
		sb.WriteString(p.styles.Bold.Render(fmt.Sprintf("%-16s", label)))
		sb.WriteString(p.styles.Body.Render(value))
		sb.WriteString("\n")
	}

	versions := fmt.Sprintf("%d deployed", len(p.versions.List))
	if p.versions.Changed {
		versions += ", unsaved changes"
	}
	line("Versions", versions)

	if p.analytics.DateStart.IsZero() {
		line("Visits", "not loaded")
	} else {
		line("Visits", fmt.Sprintf("%d from %s to %s", p.analytics.TotalVisits,
			p.analytics.DateStart.Format(time.DateOnly), p.analytics.DateEnd.Format(time.DateOnly)))
	}
	if p.showProxy {
		line("Reverse proxies", fmt.Sprintf("%d", len(p.proxies)))
	}
	return sb.String()
}
