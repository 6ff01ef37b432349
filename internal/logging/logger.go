// Package logging provides categorized zap loggers for qpanel.
//
// Every subsystem logs through Get(category). Until Initialize runs, and for
// categories switched off in the settings, Get returns a no-op logger, so
// packages can log unconditionally. The level is shared by all categories and
// can be changed at runtime with SetLevel.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a subsystem.
type Category string

const (
	CategoryBoot    Category = "boot"    // startup, config loading
	CategorySession Category = "session" // token changes, login/logout
	CategoryGuard   Category = "guard"   // navigation attempts
	CategoryState   Category = "state"   // store mutations
	CategoryHTTP    Category = "http"    // panel API calls
	CategoryBeacon  Category = "beacon"  // analytics events
	CategoryUI      Category = "ui"      // console pages
)

// AllCategories lists every category in display order.
var AllCategories = []Category{
	CategoryBoot, CategorySession, CategoryGuard, CategoryState,
	CategoryHTTP, CategoryBeacon, CategoryUI,
}

// Settings mirrors config.LoggingConfig to avoid an import cycle.
type Settings struct {
	Level      string          // debug, info, warn, error
	Format     string          // json or console
	File       string          // output path; empty means stderr
	DebugMode  bool            // forces debug level and caller annotation
	Categories map[string]bool // explicit false disables a category
}

var (
	mu       sync.RWMutex
	root     *zap.Logger
	level    = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	settings Settings
	loggers  = make(map[Category]*zap.SugaredLogger)
)

// Initialize builds the root logger from s. It can be called again to apply
// new settings; loggers handed out earlier keep the old output.
func Initialize(s Settings) error {
	lvl, err := ParseLevel(s.Level)
	if err != nil {
		return err
	}
	if s.DebugMode {
		lvl = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Sampling = nil
	cfg.DisableStacktrace = !s.DebugMode
	cfg.DisableCaller = !s.DebugMode
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	switch strings.ToLower(s.Format) {
	case "", "json":
		cfg.Encoding = "json"
	case "console", "text":
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		return fmt.Errorf("unknown log format %q", s.Format)
	}

	out := "stderr"
	if s.File != "" {
		if err := os.MkdirAll(filepath.Dir(s.File), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		out = s.File
	}
	cfg.OutputPaths = []string{out}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	prev := root
	root = logger
	settings = s
	loggers = make(map[Category]*zap.SugaredLogger)
	mu.Unlock()
	level.SetLevel(lvl)

	if prev != nil {
		_ = prev.Sync()
	}
	Get(CategoryBoot).Debugw("logging initialized", "level", lvl.String(), "encoding", cfg.Encoding, "output", out)
	return nil
}

// ParseLevel maps a level name to a zap level. Empty means warn.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return zapcore.WarnLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		return lvl, fmt.Errorf("unknown log level %q", name)
	}
	return lvl, nil
}

// SetLevel changes the level of every category at once.
func SetLevel(name string) error {
	lvl, err := ParseLevel(name)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)
	return nil
}

// Level reports the current level.
func Level() zapcore.Level { return level.Level() }

// IsCategoryEnabled reports whether category produces output.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return root != nil && categoryEnabled(category)
}

func categoryEnabled(category Category) bool {
	if settings.Categories == nil {
		return true
	}
	enabled, ok := settings.Categories[string(category)]
	return !ok || enabled
}

// Get returns the logger for category.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	var l *zap.SugaredLogger
	if root == nil || !categoryEnabled(category) {
		l = zap.NewNop().Sugar()
	} else {
		l = root.Named(string(category)).Sugar()
	}
	if root != nil {
		loggers[category] = l
	}
	return l
}

// Root returns the unnamed root logger, or a no-op logger before Initialize.
func Root() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if root == nil {
		return zap.NewNop()
	}
	return root
}

// Sync flushes buffered output.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if root == nil {
		return nil
	}
	return root.Sync()
}

// Timer measures an operation and logs its duration on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing op.
func StartTimer(category Category, op string) *Timer {
	return &Timer{category: category, op: op, start: time.Now()}
}

// Stop logs the elapsed time at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debugw(t.op+" completed", "elapsed", elapsed)
	return elapsed
}

// StopWithThreshold warns when the operation took longer than threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warnw(t.op+" was slow", "elapsed", elapsed, "threshold", threshold)
	} else {
		Get(t.category).Debugw(t.op+" completed", "elapsed", elapsed)
	}
	return elapsed
}
