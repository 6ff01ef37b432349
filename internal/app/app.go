// Package app wires the console together: token holder, store, guard, panel
// client, login flow, sync service and beacon sender.
package app

import (
	"context"
	"errors"
	"fmt"

	"qpanel/internal/auth"
	"qpanel/internal/beacon"
	"qpanel/internal/config"
	"qpanel/internal/guard"
	"qpanel/internal/logging"
	"qpanel/internal/panel"
	"qpanel/internal/session"
	"qpanel/internal/state"
)

// ErrUnknownRoute is returned for a path missing from the route table.
var ErrUnknownRoute = errors.New("unknown route")

// App holds one console session. Everything in it lives as long as the
// process; nothing is persisted.
type App struct {
	Config   *config.Config
	Tokens   *session.Holder
	Store    *state.Store
	Client   *panel.Client
	Guard    *guard.Guard
	Routes   guard.Table
	Password *auth.RememberedPassword
	Sync     *Sync
	Beacon   *beacon.Sender
}

// New builds an App from cfg.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tokens := session.NewHolder()
	store := state.New()
	client, err := panel.NewClient(cfg.Server.BaseURL, tokens, panel.Options{
		Timeout: cfg.GetRequestTimeout(),
	})
	if err != nil {
		return nil, err
	}
	sender, err := beacon.NewSender(client.HTTPClient(), cfg.Server.BaseURL, beacon.Options{
		Endpoint: cfg.Beacon.Endpoint,
		Cookie:   cfg.Beacon.Cookie,
		Timeout:  cfg.GetBeaconTimeout(),
	})
	if err != nil {
		return nil, err
	}

	password := auth.NewRememberedPassword(auth.StaticPassword(cfg.Auth.Password))
	routes := guard.QpacktRoutes()
	if cfg.IsVaden() {
		routes = guard.VadenRoutes()
	}
	g := guard.New(tokens, auth.NewPasswordLogin(client, password), guard.Options{
		LoginTimeout: cfg.GetLoginTimeout(),
		// vaden has no token endpoint to try
		DisableSpeculative: !cfg.Auth.Speculative || cfg.IsVaden(),
		Observer:           logTransition,
	})

	logging.Get(logging.CategoryBoot).Infow("console ready",
		"server", cfg.Server.BaseURL,
		"variant", cfg.Variant,
		"speculative_login", cfg.Auth.Speculative && !cfg.IsVaden(),
	)

	return &App{
		Config:   cfg,
		Tokens:   tokens,
		Store:    store,
		Client:   client,
		Guard:    g,
		Routes:   routes,
		Password: password,
		Sync:     NewSync(client, store, tokens, nil),
		Beacon:   sender,
	}, nil
}

func logTransition(t guard.Transition) {
	logging.Get(logging.CategoryGuard).Debugw("navigation",
		"attempt", t.AttemptID,
		"path", t.Route.Path,
		"from", t.From.String(),
		"to", t.To.String(),
	)
}

// LoggingSettings converts the logging section of cfg.
func LoggingSettings(cfg config.LoggingConfig) logging.Settings {
	return logging.Settings{
		Level:      cfg.Level,
		Format:     cfg.Format,
		File:       cfg.File,
		DebugMode:  cfg.DebugMode,
		Categories: cfg.Categories,
	}
}

// Route finds the route for path.
func (a *App) Route(path string) (guard.Route, error) {
	r, ok := a.Routes.Lookup(path)
	if !ok {
		return guard.Route{}, fmt.Errorf("%w: %s", ErrUnknownRoute, path)
	}
	return r, nil
}

// Navigate asks the guard for path and waits for its decision.
func (a *App) Navigate(ctx context.Context, path string) (guard.Decision, error) {
	r, err := a.Route(path)
	if err != nil {
		return guard.Decision{}, err
	}
	return a.Guard.Navigate(ctx, r).Wait(ctx)
}

// SignIn exchanges a password typed by the user for a token.
func (a *App) SignIn(ctx context.Context, password string) error {
	return auth.SignIn(ctx, a.Client, a.Tokens, a.Password, password)
}

// Logout ends the session on the server and locally. The local session ends
// even if the server cannot be reached.
func (a *App) Logout(ctx context.Context) error {
	var err error
	if a.Tokens.Authenticated() {
		if err = a.Client.InvalidateToken(ctx); panel.IsAuthError(err) {
			err = nil
		}
	}
	a.Guard.Logout()
	a.Password.Forget()
	a.Store.ClearVersions()
	a.Store.MarkVersionsSaved()
	a.Store.ReplaceProxies(nil)
	logging.Get(logging.CategorySession).Info("signed out")
	return err
}

// Close stops background work.
func (a *App) Close() {
	a.Guard.Close()
	a.Beacon.Wait()
}
