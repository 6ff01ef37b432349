// Package beacon reports analytics events to a qpackt server, the way the
// served send_event script does from a browser.
//
// The served version is read from the version cookie the server set on an
// earlier response, so events are attributed to the version the visitor was
// split into.
package beacon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"qpanel/internal/logging"

	"github.com/google/uuid"
)

// DefaultEndpoint is where the server collects events.
const DefaultEndpoint = "/qpackt/event"

// DefaultCookie carries the version the visitor is served.
const DefaultCookie = "QPACKT_VERSION"

// Event is the JSON body the server collects.
type Event struct {
	Name      string          `json:"name"`
	Version   string          `json:"version"`
	Params    string          `json:"params"`
	Path      string          `json:"path"`
	UserAgent string          `json:"user_agent"`
	Visitor   string          `json:"visitor"`
	Payload   json.RawMessage `json:"payload"`
}

// NewVisitorID returns a random visitor identifier. An empty visitor lets
// the server derive one from the peer address and user agent.
func NewVisitorID() string {
	return uuid.NewString()
}

// Options configure a Sender.
type Options struct {
	// Endpoint is a path on the base URL or an absolute URL.
	Endpoint  string
	Cookie    string
	UserAgent string
	Timeout   time.Duration
}

// Sender posts events. Its HTTP client should share the cookie jar of the
// client that browses the site so the version cookie is visible.
type Sender struct {
	http      *http.Client
	base      *url.URL
	endpoint  string
	cookie    string
	userAgent string
	timeout   time.Duration

	wg sync.WaitGroup
}

// NewSender creates a sender for the site at baseURL.
func NewSender(client *http.Client, baseURL string, opts Options) (*Sender, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid site url: %w", err)
	}
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	endpoint, err := base.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid beacon endpoint: %w", err)
	}
	if opts.Cookie == "" {
		opts.Cookie = DefaultCookie
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "qpanel-beacon"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Sender{
		http:      client,
		base:      base,
		endpoint:  endpoint.String(),
		cookie:    opts.Cookie,
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
	}, nil
}

// Version returns the served version from the cookie jar, or "".
func (s *Sender) Version() string {
	if s.http.Jar == nil {
		return ""
	}
	for _, c := range s.http.Jar.Cookies(s.base) {
		if c.Name != s.cookie {
			continue
		}
		if v, err := url.QueryUnescape(c.Value); err == nil {
			return v
		}
		return c.Value
	}
	return ""
}

// NewEvent builds an event for name raised on page, which may carry a
// query. payload is encoded as JSON; nil becomes null.
func (s *Sender) NewEvent(name, page string, payload any, visitor string) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode payload: %w", err)
	}
	ev := Event{
		Name:      name,
		Version:   s.Version(),
		UserAgent: s.userAgent,
		Visitor:   visitor,
		Payload:   raw,
	}
	if u, err := url.Parse(page); err == nil {
		ev.Path = u.Path
		if u.RawQuery != "" {
			ev.Params = "?" + u.RawQuery
		}
	} else {
		ev.Path = page
	}
	return ev, nil
}

// Deliver posts ev and waits for the answer.
func (s *Sender) Deliver(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("send event %q: %w", ev.Name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("send event %q: server answered %d", ev.Name, resp.StatusCode)
	}
	logging.Get(logging.CategoryBeacon).Debugw("event sent", "name", ev.Name, "version", ev.Version)
	return nil
}

// Send delivers ev in the background. Failures are logged, never returned.
func (s *Sender) Send(ev Event) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Deliver(context.Background(), ev); err != nil {
			logging.Get(logging.CategoryBeacon).Warnw("event dropped", "name", ev.Name, "error", err)
		}
	}()
}

// Wait blocks until background sends finished.
func (s *Sender) Wait() {
	s.wg.Wait()
}
