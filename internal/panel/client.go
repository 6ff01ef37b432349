// Package panel is the HTTP client of the qpackt administration API.
//
// Every request carries the session token as a bearer credential when one is
// held. The server answers 401 or 403 for a missing or stale token; both
// surface as a *StatusError matching ErrUnauthorized or ErrForbidden, which
// callers use to drop the token and send the user back to the login view.
package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"qpanel/internal/logging"
	"qpanel/internal/session"

	"golang.org/x/net/publicsuffix"
)

var (
	// ErrUnauthorized matches responses with status 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden matches responses with status 403. The panel reports a
	// bad or missing token this way.
	ErrForbidden = errors.New("forbidden")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Unwrap maps authentication failures onto the sentinel errors.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	}
	return nil
}

// IsAuthError reports whether err means the session token was rejected.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// Options tune a Client.
type Options struct {
	Timeout   time.Duration
	Transport http.RoundTripper
	UserAgent string
}

// Client talks to one panel server.
type Client struct {
	base      *url.URL
	http      *http.Client
	tokens    *session.Holder
	userAgent string
}

// NewClient creates a client for baseURL reading credentials from tokens.
func NewClient(baseURL string, tokens *session.Holder, opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid panel url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid panel url %q: need scheme and host", baseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "qpanel"
	}
	return &Client{
		base: base,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
			Jar:       jar,
		},
		tokens:    tokens,
		userAgent: opts.UserAgent,
	}, nil
}

// BaseURL returns the server root.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// HTTPClient exposes the underlying client, sharing its cookie jar.
func (c *Client) HTTPClient() *http.Client { return c.http }

// Cookie returns the value of the named cookie the server set for its root,
// or "" if there is none.
func (c *Client) Cookie(name string) string {
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// URL resolves an API path, which may carry a query, against the base URL.
func (c *Client) URL(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return c.base.String() + path
	}
	escaped := strings.TrimRight(c.base.EscapedPath(), "/") + "/" + strings.TrimLeft(ref.EscapedPath(), "/")
	u := *c.base
	u.Path, _ = url.PathUnescape(escaped)
	u.RawPath = escaped
	u.RawQuery = ref.RawQuery
	return u.String()
}

// Get fetches path and decodes the JSON answer into out, if non-nil.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// Post sends in as JSON and decodes the answer into out, if non-nil.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, in, out)
}

// Put sends in as JSON and decodes the answer into out, if non-nil.
func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, in, out)
}

// Delete removes path and decodes the answer into out, if non-nil.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.do(ctx, method, path, body, in != nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// do sends the request and returns the response if its status is 2xx. The
// caller closes the body.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, isJSON bool) (*http.Response, error) {
	log := logging.Get(logging.CategoryHTTP)
	timer := logging.StartTimer(logging.CategoryHTTP, method+" "+path)

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if isJSON {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.tokens.Token(); tok.Present() {
		req.Header.Set("Authorization", "Bearer "+tok.String())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Debugw("request failed", "method", method, "path", path, "error", err)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	timer.StopWithThreshold(2 * time.Second)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := &StatusError{
			Method: method,
			Path:   path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(snippet)),
		}
		log.Infow("request rejected", "method", method, "path", path, "status", resp.StatusCode)
		return nil, serr
	}
	log.Debugw("request ok", "method", method, "path", path, "status", resp.StatusCode)
	return resp, nil
}

// Download streams the body of path into w and returns the bytes written.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", path, err)
	}
	return n, nil
}
