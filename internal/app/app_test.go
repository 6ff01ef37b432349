package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"qpanel/internal/config"
	"qpanel/internal/guard"
	"qpanel/internal/panel"
	"qpanel/internal/session"
	"qpanel/internal/state"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// server is a minimal qpackt panel.
type server struct {
	mu         sync.Mutex
	token      string
	versions   string
	proxies    string
	tokenPosts atomic.Int32
	analytics  atomic.Int32
	updates    []string
	revoked    bool
}

func newServer() *server {
	return &server{
		versions: `[{"name":"a","strategy":{"Weight":1}},{"name":"b","strategy":{"UrlParam":"b"}}]`,
		proxies:  `[{"id":2,"prefix":"/z","target":"http://z"},{"id":1,"prefix":"/a","target":"http://a"}]`,
	}
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, _ := io.ReadAll(r.Body)

	if r.URL.Path == panel.PathToken && r.Method == http.MethodPost {
		s.tokenPosts.Add(1)
		if !strings.Contains(string(body), `"pw"`) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		s.token = "tok"
		_, _ = io.WriteString(w, `{"token":"tok"}`)
		return
	}
	if s.revoked || r.Header.Get("Authorization") != "Bearer "+s.token || s.token == "" {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	switch {
	case r.URL.Path == panel.PathToken:
		s.token = ""
	case r.URL.Path == panel.PathListVersions:
		_, _ = io.WriteString(w, s.versions)
	case r.URL.Path == panel.PathUpdateVersions:
		s.updates = append(s.updates, string(body))
		var req []panel.VersionDTO
		_ = json.Unmarshal(body, &req)
		data, _ := json.Marshal(req)
		s.versions = string(data)
		w.WriteHeader(http.StatusCreated)
	case strings.HasPrefix(r.URL.Path, panel.PathDeleteVersion):
	case r.URL.Path == panel.PathAnalytics:
		s.analytics.Add(1)
		_, _ = io.WriteString(w, `{"total_visit_count":7,"versions_stats":[{"name":"a","average_requests":1,"average_duration":2,"bounce_rate":3,"visit_count":7}]}`)
	case r.URL.Path == panel.PathEvents:
		_, _ = io.WriteString(w, `{"events_percent_list":[{"event":"e","percents":[{"version":"a","percent":50}]}]}`)
	case r.URL.Path == panel.PathReverseProxies:
		_, _ = io.WriteString(w, s.proxies)
	case r.URL.Path == panel.PathReverseProxy:
		s.proxies = `[{"id":3,"prefix":"/new","target":"http://new"}]`
	case strings.HasPrefix(r.URL.Path, panel.PathReverseProxy+"/"):
		s.proxies = `[]`
	default:
		http.NotFound(w, r)
	}
}

func (s *server) revoke() {
	s.mu.Lock()
	s.revoked = true
	s.mu.Unlock()
}

func newApp(t *testing.T, srv *httptest.Server, mutate func(*config.Config)) *App {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.BaseURL = srv.URL
	cfg.Auth.Password = "pw"
	if mutate != nil {
		mutate(cfg)
	}
	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func testCtx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func TestNew_ValidatesConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Variant = "nope"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNavigate_ProtectedLogsInOnce(t *testing.T) {
	fake := newServer()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	a := newApp(t, srv, func(c *config.Config) { c.Auth.Speculative = false })

	d, err := a.Navigate(testCtx(t), "/versions")
	require.NoError(t, err)
	assert.Equal(t, guard.Allow, d.Outcome)
	assert.Equal(t, session.Token("tok"), a.Tokens.Token())

	for _, p := range []string{"/", "/analytics", "/proxies"} {
		d, err := a.Navigate(testCtx(t), p)
		require.NoError(t, err)
		assert.Equal(t, guard.Allow, d.Outcome)
	}
	assert.EqualValues(t, 1, fake.tokenPosts.Load())
}

func TestNavigate_WrongPasswordRedirects(t *testing.T) {
	srv := httptest.NewServer(newServer())
	defer srv.Close()
	a := newApp(t, srv, func(c *config.Config) { c.Auth.Password = "bad" })

	d, err := a.Navigate(testCtx(t), "/analytics")
	require.NoError(t, err)
	assert.Equal(t, guard.RedirectToLogin, d.Outcome)
	assert.Equal(t, "/login?redirect=%2Fanalytics", d.Location)

	// the login view then signs in interactively
	require.NoError(t, a.SignIn(testCtx(t), "pw"))
	d, err = a.Navigate(testCtx(t), guard.RedirectTarget(d.Location))
	require.NoError(t, err)
	assert.Equal(t, guard.Allow, d.Outcome)
	assert.Equal(t, "/analytics", d.Location)
}

func TestNavigate_UnknownRoute(t *testing.T) {
	srv := httptest.NewServer(newServer())
	defer srv.Close()
	a := newApp(t, srv, nil)
	_, err := a.Navigate(testCtx(t), "/nowhere")
	assert.ErrorIs(t, err, ErrUnknownRoute)
}

func TestVadenRoutesNeverLogIn(t *testing.T) {
	fake := newServer()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	a := newApp(t, srv, func(c *config.Config) { c.Variant = config.VariantVaden })

	for _, p := range []string{"/", "/versions", "/analytics", "/help"} {
		d, err := a.Navigate(testCtx(t), p)
		require.NoError(t, err)
		assert.Equal(t, guard.Allow, d.Outcome, p)
	}
	_, err := a.Navigate(testCtx(t), "/login")
	assert.ErrorIs(t, err, ErrUnknownRoute)
	assert.False(t, a.Guard.SpeculativePending())
	assert.EqualValues(t, 0, fake.tokenPosts.Load())
}

func TestSync_VersionsRoundTrip(t *testing.T) {
	fake := newServer()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	a := newApp(t, srv, nil)
	require.NoError(t, a.SignIn(testCtx(t), "pw"))

	require.NoError(t, a.Sync.RefreshVersions(testCtx(t)))
	want := []state.Version{
		{Name: "a", Selection: state.SelectionWeight, Weight: 1},
		{Name: "b", Selection: state.SelectionURLParam, URLParam: "b"},
	}
	assert.Empty(t, cmp.Diff(want, a.Store.Versions().List))

	require.True(t, a.Store.SetVersionStrategy("a", state.SelectionWeight, 9, ""))
	assert.True(t, a.Store.Versions().Changed)
	require.NoError(t, a.Sync.SaveVersions(testCtx(t)))
	view := a.Store.Versions()
	assert.False(t, view.Changed)
	v, _ := view.Find("a")
	assert.Equal(t, uint16(9), v.Weight)

	require.NoError(t, a.Sync.DeleteVersion(testCtx(t), "b"))
	_, ok := a.Store.Versions().Find("b")
	assert.False(t, ok)
}

func TestSync_AnalyticsLoadsBothHalves(t *testing.T) {
	srv := httptest.NewServer(newServer())
	defer srv.Close()
	a := newApp(t, srv, nil)
	require.NoError(t, a.SignIn(testCtx(t), "pw"))

	sub := a.Store.Subscribe(state.TopicAnalytics)
	defer sub.Close()

	to := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -3)
	require.NoError(t, a.Sync.RefreshAnalytics(testCtx(t), to, from))

	view := a.Store.Analytics()
	assert.Equal(t, from, view.DateStart, "window is normalised")
	assert.Equal(t, to, view.DateEnd)
	assert.Equal(t, 7, view.TotalVisits)
	require.Len(t, view.Events, 1)
	assert.Equal(t, 50.0, view.Events[0].Percents[0].Percent)
	assert.NotEmpty(t, sub.Drain())
}

func TestSync_ProxiesWriteThenRefetch(t *testing.T) {
	srv := httptest.NewServer(newServer())
	defer srv.Close()
	a := newApp(t, srv, nil)
	require.NoError(t, a.SignIn(testCtx(t), "pw"))

	require.NoError(t, a.Sync.RefreshProxies(testCtx(t)))
	assert.Equal(t, "/z", a.Store.Proxies()[0].Prefix)

	require.NoError(t, a.Sync.AddProxy(testCtx(t), "/new", "http://new"))
	assert.Equal(t, []state.ReverseProxy{{ID: 3, Prefix: "/new", Target: "http://new"}}, a.Store.Proxies())

	require.NoError(t, a.Sync.RemoveProxy(testCtx(t), 3))
	assert.Empty(t, a.Store.Proxies())
}

func TestSync_RejectedTokenSignsOutOnce(t *testing.T) {
	fake := newServer()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	a := newApp(t, srv, nil)
	require.NoError(t, a.SignIn(testCtx(t), "pw"))

	var lost atomic.Int32
	a.Sync.SetOnAuthLost(func() { lost.Add(1) })
	fake.revoke()

	err := a.Sync.RefreshTopics(testCtx(t), state.AllTopics...)
	require.Error(t, err)
	assert.True(t, panel.IsAuthError(err))
	assert.False(t, a.Tokens.Authenticated())
	assert.EqualValues(t, 1, lost.Load())
}

func TestSync_DefaultWindow(t *testing.T) {
	srv := httptest.NewServer(newServer())
	defer srv.Close()
	a := newApp(t, srv, nil)

	now := time.Date(2024, 5, 20, 15, 30, 0, 0, time.UTC)
	from, to := a.Sync.Window(now)
	assert.Equal(t, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, now, to)

	a.Store.SetAnalyticsQuery(now.Add(-time.Hour), now)
	from, _ = a.Sync.Window(time.Now())
	assert.Equal(t, now.Add(-time.Hour), from)
}

func TestLogout(t *testing.T) {
	srv := httptest.NewServer(newServer())
	defer srv.Close()
	a := newApp(t, srv, func(c *config.Config) { c.Auth.Password = "" })
	require.NoError(t, a.SignIn(testCtx(t), "pw"))
	require.NoError(t, a.Sync.RefreshVersions(testCtx(t)))

	require.NoError(t, a.Logout(testCtx(t)))
	assert.False(t, a.Tokens.Authenticated())
	assert.Empty(t, a.Store.Versions().List)

	// nothing left to log in with
	d, err := a.Navigate(testCtx(t), "/versions")
	require.NoError(t, err)
	assert.Equal(t, guard.RedirectToLogin, d.Outcome)
}

func TestLoggingSettings(t *testing.T) {
	s := LoggingSettings(config.LoggingConfig{Level: "debug", Format: "console", Categories: map[string]bool{"ui": false}})
	assert.Equal(t, "debug", s.Level)
	assert.Equal(t, "console", s.Format)
	assert.False(t, s.Categories["ui"])
}
