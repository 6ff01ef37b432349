package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"qpanel/internal/app"
	"qpanel/internal/guard"
	"qpanel/internal/logging"
	"qpanel/internal/panel"
	"qpanel/internal/state"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// tabKeys maps number keys to route names, in tab order.
var tabKeys = []struct{ key, route string }{
	{"1", "root"},
	{"2", "versions"},
	{"3", "analytics"},
	{"4", "proxies"},
}

// bridge lets timers and other goroutines post messages to the running
// program.
type bridge struct {
	mu   sync.Mutex
	send func(tea.Msg)
}

func (b *bridge) set(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	b.mu.Unlock()
}

func (b *bridge) Send(msg tea.Msg) {
	b.mu.Lock()
	send := b.send
	b.mu.Unlock()
	if send != nil {
		send(msg)
	}
}

// Model is the console. Every view change goes through the navigation
// guard; pages read the store and re-render when it announces a change.
type Model struct {
	app    *app.App
	ctx    context.Context
	styles Styles
	width  int
	height int

	location    string
	pending     *guard.Attempt
	pendingPath string
	busy        int
	status      string
	statusErr   bool

	home      HomePage
	versions  VersionsPage
	analytics AnalyticsPage
	proxies   ProxiesPage
	login     LoginPage
	help      HelpPage

	spinner spinner.Model
	sub     *state.Subscription
	refresh *RefreshDebouncer
	bridge  *bridge
	now     func() time.Time
}

// NewModel creates the console for a. ctx bounds every background call.
func NewModel(ctx context.Context, a *app.App) Model {
	styles := DefaultStyles()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	_, hasProxies := a.Routes.ByName("proxies")
	b := &bridge{}
	a.Sync.SetOnAuthLost(func() { b.Send(authLostMsg{}) })
	return Model{
		app:       a,
		ctx:       ctx,
		styles:    styles,
		home:      NewHomePage(styles, a.Config.Server.BaseURL, a.Config.Variant, hasProxies),
		versions:  NewVersionsPage(styles),
		analytics: NewAnalyticsPage(styles),
		proxies:   NewProxiesPage(styles),
		login:     NewLoginPage(styles),
		help:      NewHelpPage(styles, a.Routes),
		spinner:   sp,
		sub:       a.Store.Subscribe(state.AllTopics...),
		refresh:   NewRefreshDebouncer(ctx, DefaultRefreshDuration),
		bridge:    b,
		now:       time.Now,
	}
}

// Attach connects the model to the program running it, so debounced
// refreshes and session loss can reach the update loop.
func (m Model) Attach(p *tea.Program) {
	m.bridge.set(p.Send)
}

// Location is the path of the view on screen.
func (m Model) Location() string {
	return m.location
}

// Init starts listening to the store and navigates to the overview.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitStore(), emit(navigateMsg{path: "/"}))
}

type navigateMsg struct{ path string }

func (m Model) waitStore() tea.Cmd {
	sub, ctx := m.sub, m.ctx
	return func() tea.Msg {
		changes, err := sub.Next(ctx)
		return storeMsg{changes: changes, err: err}
	}
}

func (m Model) navigate(path string) (Model, tea.Cmd) {
	route, err := m.app.Route(path)
	if err != nil {
		m.setError(err)
		return m, nil
	}
	a := m.app.Guard.Navigate(m.ctx, route)
	m.pending = a
	m.pendingPath = path
	ctx := m.ctx
	return m, func() tea.Msg {
		d, err := a.Wait(ctx)
		return decisionMsg{attempt: a, path: path, decision: d, err: err}
	}
}

// topicsFor lists the sub-states the view at path shows.
func (m Model) topicsFor(path string) []state.Topic {
	route, ok := m.app.Routes.Lookup(path)
	if !ok {
		return nil
	}
	switch route.Name {
	case "root":
		topics := []state.Topic{state.TopicVersions, state.TopicAnalytics}
		if _, ok := m.app.Routes.ByName("proxies"); ok {
			topics = append(topics, state.TopicProxies)
		}
		return topics
	case "versions":
		return []state.Topic{state.TopicVersions}
	case "analytics":
		return []state.Topic{state.TopicAnalytics}
	case "proxies":
		return []state.Topic{state.TopicProxies}
	}
	return nil
}

func (m *Model) load(topics ...state.Topic) tea.Cmd {
	if len(topics) == 0 {
		return nil
	}
	m.busy++
	s, ctx := m.app.Sync, m.ctx
	return func() tea.Msg {
		return loadedMsg{topics: topics, err: s.RefreshTopics(ctx, topics...)}
	}
}

func (m *Model) run(what string, fn func(context.Context) (string, error)) tea.Cmd {
	m.busy++
	ctx := m.ctx
	return func() tea.Msg {
		note, err := fn(ctx)
		return actionMsg{what: what, note: note, err: err}
	}
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(err error) {
	m.status = err.Error()
	m.statusErr = true
	logging.Get(logging.CategoryUI).Debugw("console error", "error", err)
}

// fail reports err. A rejected token sends the user to sign in again.
func (m Model) fail(err error) (Model, tea.Cmd) {
	if panel.IsAuthError(err) {
		if _, ok := m.app.Routes.ByName("login"); ok {
			return m.expire()
		}
	}
	m.setError(err)
	return m, nil
}

// expire sends the user to the login view once, however many requests
// reported the rejected token.
func (m Model) expire() (Model, tea.Cmd) {
	if _, ok := m.app.Routes.ByName("login"); !ok {
		return m, nil
	}
	if m.location == guard.LoginPath || strings.HasPrefix(m.pendingPath, guard.LoginPath) {
		return m, nil
	}
	m.setStatus("Session expired, please sign in again.")
	return m.navigate(guard.LoginLocation(m.location))
}

func (m *Model) syncPages(topics ...state.Topic) {
	for _, t := range topics {
		switch t {
		case state.TopicVersions:
			v := m.app.Store.Versions()
			m.versions.SetData(v)
			m.home.SetVersions(v)
		case state.TopicAnalytics:
			v := m.app.Store.Analytics()
			m.analytics.SetData(v)
			m.home.SetAnalytics(v)
		case state.TopicProxies:
			list := m.app.Store.Proxies()
			m.proxies.SetData(list)
			m.home.SetProxies(list)
		}
	}
}

func (m Model) capturing() bool {
	switch m.location {
	case guard.LoginPath:
		return true
	case "/versions":
		return m.versions.Editing()
	case "/proxies":
		return m.proxies.Editing()
	}
	return false
}

func (m Model) quit() (Model, tea.Cmd) {
	m.refresh.Cancel()
	m.sub.Close()
	if m.pending != nil {
		m.pending.Cancel()
	}
	return m, tea.Quit
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		h := msg.Height - 4
		m.versions.SetSize(msg.Width, h)
		m.analytics.SetSize(msg.Width, h)
		m.proxies.SetSize(msg.Width, h)
		m.help.SetSize(msg.Width, h)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if !m.capturing() {
			if next, cmd, ok := m.handleGlobalKey(msg.String()); ok {
				return next, cmd
			}
		}
		return m.updatePage(msg)

	case navigateMsg:
		return m.navigate(msg.path)

	case decisionMsg:
		return m.handleDecision(msg)

	case authLostMsg:
		return m.expire()

	case storeMsg:
		if msg.err != nil {
			// closed on quit
			return m, nil
		}
		topics := make([]state.Topic, len(msg.changes))
		for i, c := range msg.changes {
			topics[i] = c.Topic
		}
		m.syncPages(topics...)
		return m, m.waitStore()

	case loadedMsg:
		m.busy--
		if msg.err != nil {
			return m.fail(msg.err)
		}
		return m, nil

	case refreshMsg:
		return m, m.load(msg.topics...)

	case actionMsg:
		m.busy--
		if msg.err != nil {
			return m.fail(fmt.Errorf("%s: %w", msg.what, msg.err))
		}
		if msg.note != "" {
			m.setStatus(msg.note)
		} else {
			m.setStatus(msg.what)
		}
		return m, nil

	case setStrategyMsg:
		m.app.Store.SetVersionStrategy(msg.name, msg.selection, msg.weight, msg.urlParam)
		return m, nil

	case saveVersionsMsg:
		return m, m.run("Saved versions", func(ctx context.Context) (string, error) {
			return "", m.app.Sync.SaveVersions(ctx)
		})

	case deleteVersionMsg:
		name := msg.name
		return m, m.run("Deleted version "+name, func(ctx context.Context) (string, error) {
			return "", m.app.Sync.DeleteVersion(ctx, name)
		})

	case addProxyMsg:
		prefix, target := msg.prefix, msg.target
		return m, m.run("Added proxy "+prefix, func(ctx context.Context) (string, error) {
			return "", m.app.Sync.AddProxy(ctx, prefix, target)
		})

	case removeProxyMsg:
		id := msg.id
		return m, m.run(fmt.Sprintf("Removed proxy %d", id), func(ctx context.Context) (string, error) {
			return "", m.app.Sync.RemoveProxy(ctx, id)
		})

	case shiftWindowMsg:
		from, to := m.app.Sync.Window(m.now())
		from, to = from.AddDate(0, 0, msg.days), to.AddDate(0, 0, msg.days)
		return m, m.run("Loaded analytics", func(ctx context.Context) (string, error) {
			return "", m.app.Sync.RefreshAnalytics(ctx, from, to)
		})

	case exportEventsMsg:
		dir := m.app.Config.Export.Dir
		return m, m.run("Exported events", func(ctx context.Context) (string, error) {
			path, rows, err := m.app.Sync.ExportEvents(ctx, dir)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Exported %d events to %s", rows, path), nil
		})

	case signInMsg:
		target, password, ctx := m.login.Target(), msg.password, m.ctx
		return m, func() tea.Msg {
			return signedInMsg{target: target, err: m.app.SignIn(ctx, password)}
		}

	case signedInMsg:
		if msg.err != nil {
			m.login.Fail(msg.err)
			return m, nil
		}
		m.setStatus("Signed in.")
		return m.navigate(msg.target)

	case loggedOutMsg:
		if msg.err != nil {
			m.setError(msg.err)
		} else {
			m.setStatus("Signed out.")
		}
		return m.navigate(guard.LoginPath)
	}

	return m.updatePage(msg)
}

func (m Model) handleGlobalKey(key string) (Model, tea.Cmd, bool) {
	switch key {
	case "q":
		next, cmd := m.quit()
		return next, cmd, true
	case "?":
		next, cmd := m.navigate("/help")
		return next, cmd, true
	case "r":
		topics := m.topicsFor(m.location)
		if len(topics) == 0 {
			return m, nil, true
		}
		b := m.bridge
		m.refresh.Request(func(due []state.Topic) { b.Send(refreshMsg{topics: due}) }, topics...)
		return m, nil, true
	case "L":
		if _, ok := m.app.Routes.ByName("login"); !ok {
			return m, nil, true
		}
		a, ctx := m.app, m.ctx
		return m, func() tea.Msg { return loggedOutMsg{err: a.Logout(ctx)} }, true
	}
	for _, tab := range tabKeys {
		if tab.key != key {
			continue
		}
		route, ok := m.app.Routes.ByName(tab.route)
		if !ok {
			return m, nil, true
		}
		next, cmd := m.navigate(route.Path)
		return next, cmd, true
	}
	return m, nil, false
}

func (m Model) handleDecision(msg decisionMsg) (Model, tea.Cmd) {
	if msg.attempt != m.pending {
		return m, nil
	}
	m.pending = nil
	if msg.err != nil {
		if !errors.Is(msg.err, guard.ErrSuperseded) && !errors.Is(msg.err, guard.ErrCancelled) {
			m.setError(msg.err)
		}
		return m, nil
	}

	d := msg.decision
	if d.Outcome == guard.RedirectToLogin {
		m.location = guard.LoginPath
		return m, m.login.Reset(guard.RedirectTarget(d.Location), d.Err)
	}

	m.location = d.Route.Path
	if d.Route.Path == guard.LoginPath {
		return m, m.login.Reset(guard.RedirectTarget(msg.path), nil)
	}
	topics := m.topicsFor(d.Route.Path)
	m.syncPages(topics...)
	return m, m.load(topics...)
}

func (m Model) updatePage(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.location {
	case "/versions":
		m.versions, cmd = m.versions.Update(msg)
	case "/analytics":
		m.analytics, cmd = m.analytics.Update(msg)
	case "/proxies":
		m.proxies, cmd = m.proxies.Update(msg)
	case guard.LoginPath:
		m.login, cmd = m.login.Update(msg)
	case "/help":
		m.help, cmd = m.help.Update(msg)
	}
	return m, cmd
}

// View renders the console.
func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(m.headerView())
	sb.WriteString("\n")

	body := m.pageView()
	if m.pending != nil && m.pending.State() == guard.StateAttemptingLogin {
		body = m.spinner.View() + " Signing in..."
	}
	sb.WriteString(m.styles.Content.Render(body))
	sb.WriteString("\n")
	sb.WriteString(m.footerView())
	return sb.String()
}

func (m Model) pageView() string {
	switch m.location {
	case "/":
		return m.home.View()
	case "/versions":
		return m.versions.View()
	case "/analytics":
		return m.analytics.View()
	case "/proxies":
		return m.proxies.View()
	case guard.LoginPath:
		return m.login.View()
	case "/help":
		return m.help.View()
	}
	return ""
}

func (m Model) headerView() string {
	tabs := []string{m.styles.Header.Render("qpanel")}
	for _, tab := range tabKeys {
		route, ok := m.app.Routes.ByName(tab.route)
		if !ok {
			continue
		}
		label := tab.key + " " + tab.route
		if route.Path == m.location {
			tabs = append(tabs, m.styles.ActiveTab.Render(label))
		} else {
			tabs = append(tabs, m.styles.Tab.Render(label))
		}
	}

	session := m.styles.Muted.Render("signed out")
	if m.app.Tokens.Authenticated() {
		session = m.styles.Success.Render("signed in")
	}
	left := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(session) - 1
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + session
}

func (m Model) footerView() string {
	var parts []string
	if m.busy > 0 {
		parts = append(parts, m.spinner.View()+" loading")
	}
	if due := m.refresh.Pending(); len(due) > 0 {
		names := make([]string, len(due))
		for i, t := range due {
			names[i] = string(t)
		}
		parts = append(parts, m.styles.Muted.Render("reload queued: "+strings.Join(names, ", ")))
	}
	if m.status != "" {
		if m.statusErr {
			parts = append(parts, m.styles.Error.Render(m.status))
		} else {
			parts = append(parts, m.styles.Info.Render(m.status))
		}
	}
	parts = append(parts, m.styles.Muted.Render("[?] help  [r] reload  [q] quit"))
	return m.styles.Footer.Render(strings.Join(parts, "  "))
}
