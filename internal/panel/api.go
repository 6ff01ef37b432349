package panel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"qpanel/internal/session"
	"qpanel/internal/state"
)

// API paths.
const (
	PathToken          = "/token"
	PathListVersions   = "/list-versions"
	PathUpdateVersions = "/update-versions"
	PathDeleteVersion  = "/delete-version/"
	PathAnalytics      = "/analytics"
	PathEvents         = "/analytics/events"
	PathEventsCSV      = "/analytics/events/csv"
	PathReverseProxies = "/reverse-proxies"
	PathReverseProxy   = "/reverse-proxy"
)

// Strategy is the wire form of a traffic split strategy: exactly one of the
// fields is set, {"Weight": n} or {"UrlParam": "p"}.
type Strategy struct {
	Weight   *uint16 `json:"Weight,omitempty"`
	URLParam *string `json:"UrlParam,omitempty"`
}

// VersionDTO is a version as listed by the server.
type VersionDTO struct {
	Name     string   `json:"name"`
	Strategy Strategy `json:"strategy"`
}

// ErrUnknownStrategy is returned for a strategy with neither form set.
var ErrUnknownStrategy = errors.New("unknown version strategy")

// StrategyOf converts a version's selection to its wire form.
func StrategyOf(v state.Version) Strategy {
	if v.Selection == state.SelectionURLParam {
		p := v.URLParam
		return Strategy{URLParam: &p}
	}
	w := v.Weight
	return Strategy{Weight: &w}
}

// ToVersion converts a listed version into a store entry.
func (d VersionDTO) ToVersion() (state.Version, error) {
	v := state.Version{Name: d.Name}
	switch {
	case d.Strategy.Weight != nil:
		v.Selection = state.SelectionWeight
		v.Weight = *d.Strategy.Weight
	case d.Strategy.URLParam != nil:
		v.Selection = state.SelectionURLParam
		v.URLParam = *d.Strategy.URLParam
	default:
		return v, fmt.Errorf("version %q: %w", d.Name, ErrUnknownStrategy)
	}
	return v, nil
}

type tokenRequest struct {
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// RequestToken exchanges the panel password for a session token.
func (c *Client) RequestToken(ctx context.Context, password string) (session.Token, error) {
	var resp tokenResponse
	if err := c.Post(ctx, PathToken, tokenRequest{Password: password}, &resp); err != nil {
		return session.NoToken, err
	}
	return session.Token(resp.Token), nil
}

// InvalidateToken ends the server-side session.
func (c *Client) InvalidateToken(ctx context.Context) error {
	return c.Delete(ctx, PathToken, nil)
}

// ListVersions fetches the deployed versions in server order.
func (c *Client) ListVersions(ctx context.Context) ([]state.Version, error) {
	var dtos []VersionDTO
	if err := c.Get(ctx, PathListVersions, &dtos); err != nil {
		return nil, err
	}
	list := make([]state.Version, 0, len(dtos))
	for _, d := range dtos {
		v, err := d.ToVersion()
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return list, nil
}

// UpdateVersions sends the strategies of list. The server ignores names it
// does not know.
func (c *Client) UpdateVersions(ctx context.Context, list []state.Version) error {
	req := make([]VersionDTO, len(list))
	for i, v := range list {
		req[i] = VersionDTO{Name: v.Name, Strategy: StrategyOf(v)}
	}
	return c.Post(ctx, PathUpdateVersions, req, nil)
}

// DeleteVersion removes a deployed version.
func (c *Client) DeleteVersion(ctx context.Context, name string) error {
	return c.Delete(ctx, PathDeleteVersion+url.PathEscape(name), nil)
}

type analyticsRequest struct {
	FromTime time.Time `json:"from_time"`
	ToTime   time.Time `json:"to_time"`
}

type versionStatsDTO struct {
	Name            string  `json:"name"`
	AverageRequests float64 `json:"average_requests"`
	AverageDuration uint32  `json:"average_duration"` // seconds
	BounceRate      float64 `json:"bounce_rate"`
	VisitCount      int     `json:"visit_count"`
}

type analyticsResponse struct {
	TotalVisitCount int               `json:"total_visit_count"`
	VersionsStats   []versionStatsDTO `json:"versions_stats"`
}

// AnalyticsResult is the visit summary of one time window.
type AnalyticsResult struct {
	TotalVisits int
	Stats       []state.VersionStats
}

// Analytics fetches visit statistics between from and to.
func (c *Client) Analytics(ctx context.Context, from, to time.Time) (AnalyticsResult, error) {
	var resp analyticsResponse
	req := analyticsRequest{FromTime: from.UTC(), ToTime: to.UTC()}
	if err := c.Post(ctx, PathAnalytics, req, &resp); err != nil {
		return AnalyticsResult{}, err
	}
	out := AnalyticsResult{
		TotalVisits: resp.TotalVisitCount,
		Stats:       make([]state.VersionStats, len(resp.VersionsStats)),
	}
	for i, s := range resp.VersionsStats {
		out.Stats[i] = state.VersionStats{
			Name:            s.Name,
			AverageRequests: s.AverageRequests,
			AverageDuration: time.Duration(s.AverageDuration) * time.Second,
			BounceRate:      s.BounceRate,
			VisitCount:      s.VisitCount,
		}
	}
	return out, nil
}

type versionPercentDTO struct {
	Version string  `json:"version"`
	Percent float64 `json:"percent"`
}

type eventPercentsDTO struct {
	Event    string              `json:"event"`
	Percents []versionPercentDTO `json:"percents"`
}

type eventsStatsResponse struct {
	EventsPercentList []eventPercentsDTO `json:"events_percent_list"`
}

func rangeQuery(path string, from, to time.Time) string {
	q := url.Values{}
	q.Set("from_time", from.UTC().Format(time.RFC3339))
	q.Set("to_time", to.UTC().Format(time.RFC3339))
	return path + "?" + q.Encode()
}

// EventStats fetches, per event name, the share of each version's visits
// that raised it.
func (c *Client) EventStats(ctx context.Context, from, to time.Time) ([]state.EventPercents, error) {
	var resp eventsStatsResponse
	if err := c.Get(ctx, rangeQuery(PathEvents, from, to), &resp); err != nil {
		return nil, err
	}
	out := make([]state.EventPercents, len(resp.EventsPercentList))
	for i, e := range resp.EventsPercentList {
		ep := state.EventPercents{Event: e.Event, Percents: make([]state.VersionPercent, len(e.Percents))}
		for j, p := range e.Percents {
			ep.Percents[j] = state.VersionPercent{Version: p.Version, Percent: p.Percent}
		}
		out[i] = ep
	}
	return out, nil
}

// EventsCSVPath is the export path for events between from and to.
func EventsCSVPath(from, to time.Time) string {
	return rangeQuery(PathEventsCSV, from, to)
}

type reverseProxyDTO struct {
	ID     int    `json:"id"`
	Prefix string `json:"prefix"`
	Target string `json:"target"`
}

type createProxyRequest struct {
	Prefix string `json:"prefix"`
	Target string `json:"target"`
}

// ListProxies fetches the reverse proxies in server order.
func (c *Client) ListProxies(ctx context.Context) ([]state.ReverseProxy, error) {
	var dtos []reverseProxyDTO
	if err := c.Get(ctx, PathReverseProxies, &dtos); err != nil {
		return nil, err
	}
	out := make([]state.ReverseProxy, len(dtos))
	for i, d := range dtos {
		out[i] = state.ReverseProxy{ID: d.ID, Prefix: d.Prefix, Target: d.Target}
	}
	return out, nil
}

// ErrInvalidProxy is returned before contacting the server when a proxy
// definition cannot be valid.
var ErrInvalidProxy = errors.New("invalid reverse proxy")

// CreateProxy adds a reverse proxy from prefix to the absolute URL target.
func (c *Client) CreateProxy(ctx context.Context, prefix, target string) error {
	if prefix == "" {
		return fmt.Errorf("%w: empty prefix", ErrInvalidProxy)
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: target %q is not an absolute url", ErrInvalidProxy, target)
	}
	return c.Post(ctx, PathReverseProxy, createProxyRequest{Prefix: prefix, Target: target}, nil)
}

// DeleteProxy removes the reverse proxy with id.
func (c *Client) DeleteProxy(ctx context.Context, id int) error {
	return c.Delete(ctx, PathReverseProxy+"/"+strconv.Itoa(id), nil)
}
