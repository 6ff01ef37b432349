// Command qpanel is the admin console of a qpackt server: an interactive
// terminal UI plus scriptable subcommands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"qpanel/internal/app"
	"qpanel/internal/config"
	"qpanel/internal/guard"
	"qpanel/internal/logging"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	serverURL  string
	verbose    bool
	timeout    time.Duration

	// Loaded by the root command before any subcommand runs.
	cfg *config.Config
)

// errNotSignedIn is returned when a protected command could not log in.
var errNotSignedIn = errors.New("not signed in")

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "qpanel",
	Short: "Admin console for a qpackt server",
	Long: `qpanel manages a qpackt web & analytics server: deployed versions and
their traffic split, visit analytics, event exports and reverse proxies.

Run without arguments to start the interactive console. Protected commands
sign in with the configured password (auth.password or QPANEL_PASSWORD).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd == cmd.Root())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Config file")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Panel server URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Timeout of a single command")

	rootCmd.AddCommand(loginCmd, logoutCmd, versionsCmd, analyticsCmd, eventsCmd, proxiesCmd, beaconCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the config and starts logging. The interactive console owns
// the terminal, so its logs go to a file.
func setup(interactive bool) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if serverURL != "" {
		loaded.Server.BaseURL = serverURL
	}
	if verbose {
		loaded.Logging.Level = "debug"
	}
	if interactive && loaded.Logging.File == "" {
		loaded.Logging.File = defaultLogFile()
	}
	if loaded.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(loaded.Logging.File), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	if err := logging.Initialize(app.LoggingSettings(loaded.Logging)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	cfg = loaded
	return nil
}

func defaultLogFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "qpanel", "qpanel.log")
}

// commandContext bounds a command by --timeout and cancels it on SIGINT or
// SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// openApp builds the console for one command.
func openApp() (*app.App, error) {
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}
	return app.New(cfg)
}

// openAt builds the console and navigates to path, signing in when the view
// is protected.
func openAt(ctx context.Context, path string) (*app.App, error) {
	a, err := openApp()
	if err != nil {
		return nil, err
	}
	d, err := a.Navigate(ctx, path)
	if err != nil {
		a.Close()
		return nil, err
	}
	if d.Outcome == guard.RedirectToLogin {
		a.Close()
		if d.Err != nil {
			return nil, fmt.Errorf("%w: %w", errNotSignedIn, d.Err)
		}
		return nil, errNotSignedIn
	}
	return a, nil
}
