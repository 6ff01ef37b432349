package beacon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type collector struct {
	mu     sync.Mutex
	events []Event
	status int
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/":
		http.SetCookie(w, &http.Cookie{Name: DefaultCookie, Value: url.QueryEscape("v 2"), Path: "/"})
		_, _ = io.WriteString(w, "<html></html>")
	case DefaultEndpoint:
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c.mu.Lock()
		c.events = append(c.events, ev)
		status := c.status
		c.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
		}
	default:
		http.NotFound(w, r)
	}
}

func (c *collector) received() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func newSender(t *testing.T, srv *httptest.Server) *Sender {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	s, err := NewSender(&http.Client{Jar: jar, Transport: srv.Client().Transport}, srv.URL, Options{UserAgent: "test-agent"})
	require.NoError(t, err)
	return s
}

func TestSender_VersionFromCookie(t *testing.T) {
	col := &collector{}
	srv := httptest.NewServer(col)
	defer srv.Close()
	s := newSender(t, srv)

	assert.Empty(t, s.Version(), "no cookie before visiting the site")
	resp, err := s.http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "v 2", s.Version())

	ev, err := s.NewEvent("signup", "/pricing?plan=pro", map[string]int{"seats": 3}, "visitor-1")
	require.NoError(t, err)
	require.NoError(t, s.Deliver(context.Background(), ev))

	got := col.received()
	require.Len(t, got, 1)
	assert.Equal(t, "signup", got[0].Name)
	assert.Equal(t, "v 2", got[0].Version)
	assert.Equal(t, "/pricing", got[0].Path)
	assert.Equal(t, "?plan=pro", got[0].Params)
	assert.Equal(t, "test-agent", got[0].UserAgent)
	assert.Equal(t, "visitor-1", got[0].Visitor)
	assert.JSONEq(t, `{"seats":3}`, string(got[0].Payload))
}

func TestSender_NilPayloadIsNull(t *testing.T) {
	s, err := NewSender(nil, "http://example.com", Options{})
	require.NoError(t, err)
	ev, err := s.NewEvent("click", "/", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "null", string(ev.Payload))
	assert.Empty(t, ev.Params)
	assert.Empty(t, ev.Version)
}

func TestSender_DeliverReportsStatus(t *testing.T) {
	col := &collector{status: http.StatusInternalServerError}
	srv := httptest.NewServer(col)
	defer srv.Close()
	s := newSender(t, srv)

	ev, err := s.NewEvent("x", "/", nil, "")
	require.NoError(t, err)
	assert.ErrorContains(t, s.Deliver(context.Background(), ev), "500")
}

func TestSender_SendIsFireAndForget(t *testing.T) {
	col := &collector{status: http.StatusInternalServerError}
	srv := httptest.NewServer(col)
	defer srv.Close()
	s := newSender(t, srv)

	for i := 0; i < 5; i++ {
		ev, err := s.NewEvent("burst", "/", i, "")
		require.NoError(t, err)
		s.Send(ev)
	}
	s.Wait()
	assert.Len(t, col.received(), 5)
}

func TestNewSender_AbsoluteEndpoint(t *testing.T) {
	s, err := NewSender(nil, "https://site.example", Options{Endpoint: "https://collector.example/e"})
	require.NoError(t, err)
	assert.Equal(t, "https://collector.example/e", s.endpoint)

	s, err = NewSender(nil, "https://site.example/app/", Options{})
	require.NoError(t, err)
	assert.Equal(t, "https://site.example/qpackt/event", s.endpoint)
}

func TestNewVisitorID(t *testing.T) {
	a, b := NewVisitorID(), NewVisitorID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}
