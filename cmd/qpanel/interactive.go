package main

import (
	"context"
	"errors"

	"qpanel/cmd/qpanel/ui"
	"qpanel/internal/config"
	"qpanel/internal/logging"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// runInteractive runs the console next to a watcher that applies log level
// changes from the config file.
func runInteractive(cmd *cobra.Command) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	g, ctx := errgroup.WithContext(parent)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel(ctx, a)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	model.Attach(p)

	g.Go(func() error {
		defer cancel()
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := config.Watch(ctx, configPath, func(c *config.Config) {
			if err := logging.SetLevel(c.Logging.Level); err != nil {
				logging.Get(logging.CategoryBoot).Warnw("ignoring log level from config", "error", err)
			}
		})
		if err != nil {
			// the console works without hot reload
			logging.Get(logging.CategoryBoot).Warnw("config watcher not started", "path", configPath, "error", err)
		}
		return nil
	})
	return g.Wait()
}
