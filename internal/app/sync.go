package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qpanel/internal/logging"
	"qpanel/internal/panel"
	"qpanel/internal/session"
	"qpanel/internal/state"

	"golang.org/x/sync/errgroup"
)

// Sync moves data between the panel server and the store. Every write is
// followed by a re-fetch so the store mirrors what the server accepted.
//
// A rejected token clears the session and calls onAuthLost, so the console
// can send the user to the login view.
type Sync struct {
	client     *panel.Client
	store      *state.Store
	tokens     *session.Holder

	mu         sync.Mutex // serializes sign-outs
	onAuthLost func()
}

// NewSync creates a sync service. onAuthLost may be nil.
func NewSync(client *panel.Client, store *state.Store, tokens *session.Holder, onAuthLost func()) *Sync {
	return &Sync{client: client, store: store, tokens: tokens, onAuthLost: onAuthLost}
}

// SetOnAuthLost replaces the auth-lost callback.
func (s *Sync) SetOnAuthLost(fn func()) {
	s.mu.Lock()
	s.onAuthLost = fn
	s.mu.Unlock()
}

func (s *Sync) check(op string, err error) error {
	if err == nil {
		return nil
	}
	if panel.IsAuthError(err) {
		s.mu.Lock()
		if s.tokens.Authenticated() {
			logging.Get(logging.CategorySession).Infow("token rejected, signing out", "op", op)
			s.tokens.Clear()
			if s.onAuthLost != nil {
				s.onAuthLost()
			}
		}
		s.mu.Unlock()
	}
	return fmt.Errorf("%s: %w", op, err)
}

// RefreshVersions replaces the local versions with the server's list,
// discarding unsaved edits.
func (s *Sync) RefreshVersions(ctx context.Context) error {
	list, err := s.client.ListVersions(ctx)
	if err != nil {
		return s.check("list versions", err)
	}
	if err := s.store.ReplaceVersions(list); err != nil {
		return fmt.Errorf("list versions: %w", err)
	}
	return nil
}

// SaveVersions sends the local strategies and re-fetches.
func (s *Sync) SaveVersions(ctx context.Context) error {
	if err := s.client.UpdateVersions(ctx, s.store.Versions().List); err != nil {
		return s.check("update versions", err)
	}
	return s.RefreshVersions(ctx)
}

// DeleteVersion removes a version on the server, then locally.
func (s *Sync) DeleteVersion(ctx context.Context, name string) error {
	if err := s.client.DeleteVersion(ctx, name); err != nil {
		return s.check("delete version", err)
	}
	s.store.DeleteVersion(name)
	return nil
}

// RefreshAnalytics sets the query window and loads visit and event
// statistics for it concurrently.
func (s *Sync) RefreshAnalytics(ctx context.Context, from, to time.Time) error {
	if to.Before(from) {
		from, to = to, from
	}
	s.store.SetAnalyticsQuery(from, to)

	var (
		visits panel.AnalyticsResult
		events []state.EventPercents
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		visits, err = s.client.Analytics(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		events, err = s.client.EventStats(gctx, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return s.check("analytics", err)
	}
	s.store.SetAnalyticsResults(visits.TotalVisits, visits.Stats)
	s.store.SetEventStats(events)
	return nil
}

// RefreshProxies replaces the local proxies with the server's list.
func (s *Sync) RefreshProxies(ctx context.Context) error {
	list, err := s.client.ListProxies(ctx)
	if err != nil {
		return s.check("list proxies", err)
	}
	s.store.ReplaceProxies(list)
	return nil
}

// AddProxy creates a proxy and re-fetches.
func (s *Sync) AddProxy(ctx context.Context, prefix, target string) error {
	if err := s.client.CreateProxy(ctx, prefix, target); err != nil {
		return s.check("create proxy", err)
	}
	return s.RefreshProxies(ctx)
}

// RemoveProxy deletes a proxy and re-fetches.
func (s *Sync) RemoveProxy(ctx context.Context, id int) error {
	if err := s.client.DeleteProxy(ctx, id); err != nil {
		return s.check("delete proxy", err)
	}
	return s.RefreshProxies(ctx)
}

// DefaultWindowDays is the span of the analytics window before one is chosen.
const DefaultWindowDays = 7

// Window returns the analytics window in the store, or the last
// DefaultWindowDays days up to now when none was set.
func (s *Sync) Window(now time.Time) (from, to time.Time) {
	view := s.store.Analytics()
	if view.DateStart.IsZero() || view.DateEnd.IsZero() {
		return now.AddDate(0, 0, -DefaultWindowDays).Truncate(24 * time.Hour), now
	}
	return view.DateStart, view.DateEnd
}

// ExportEvents writes the events of the current analytics window to dir.
func (s *Sync) ExportEvents(ctx context.Context, dir string) (string, int, error) {
	from, to := s.Window(time.Now())
	path, rows, err := s.client.ExportEvents(ctx, from, to, dir)
	if err != nil {
		return "", 0, s.check("export events", err)
	}
	return path, rows, nil
}

// RefreshTopics loads the given sub-states concurrently. Analytics uses
// Window.
func (s *Sync) RefreshTopics(ctx context.Context, topics ...state.Topic) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		switch topic {
		case state.TopicVersions:
			g.Go(func() error { return s.RefreshVersions(gctx) })
		case state.TopicProxies:
			g.Go(func() error { return s.RefreshProxies(gctx) })
		case state.TopicAnalytics:
			from, to := s.Window(time.Now())
			g.Go(func() error { return s.RefreshAnalytics(gctx, from, to) })
		}
	}
	return g.Wait()
}
