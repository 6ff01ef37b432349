package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func reset(t *testing.T) {
	t.Helper()
	mu.Lock()
	root = nil
	settings = Settings{}
	loggers = make(map[Category]*zap.SugaredLogger)
	mu.Unlock()
	level.SetLevel(zapcore.WarnLevel)
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	require.NoError(t, Sync())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func TestGetBeforeInitializeIsNoop(t *testing.T) {
	reset(t)
	assert.False(t, IsCategoryEnabled(CategoryGuard))
	assert.NotPanics(t, func() { Get(CategoryGuard).Infow("dropped", "k", 1) })
	assert.NoError(t, Sync())
}

func TestCategoriesWriteNamedEntries(t *testing.T) {
	reset(t)
	path := filepath.Join(t.TempDir(), "logs", "qpanel.log")
	require.NoError(t, Initialize(Settings{Level: "info", File: path}))

	for _, cat := range AllCategories {
		Get(cat).Infow("hello", "category", string(cat))
	}
	Get(CategoryGuard).Debug("below level")

	lines := readLines(t, path)
	require.Len(t, lines, len(AllCategories))
	for i, cat := range AllCategories {
		assert.Equal(t, string(cat), lines[i]["logger"])
		assert.Equal(t, "hello", lines[i]["msg"])
	}
}

func TestDisabledCategory(t *testing.T) {
	reset(t)
	path := filepath.Join(t.TempDir(), "qpanel.log")
	require.NoError(t, Initialize(Settings{
		Level:      "info",
		File:       path,
		Categories: map[string]bool{"http": false, "ui": true},
	}))

	assert.False(t, IsCategoryEnabled(CategoryHTTP))
	assert.True(t, IsCategoryEnabled(CategoryUI))
	assert.True(t, IsCategoryEnabled(CategoryState), "unlisted categories stay on")

	Get(CategoryHTTP).Info("hidden")
	Get(CategoryUI).Info("shown")

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
}

func TestSetLevelAppliesToExistingLoggers(t *testing.T) {
	reset(t)
	path := filepath.Join(t.TempDir(), "qpanel.log")
	require.NoError(t, Initialize(Settings{Level: "error", File: path}))

	l := Get(CategoryState)
	l.Info("first")
	require.NoError(t, SetLevel("info"))
	assert.Equal(t, zapcore.InfoLevel, Level())
	l.Info("second")

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "second", lines[0]["msg"])

	assert.Error(t, SetLevel("loud"))
}

func TestDebugModeForcesDebug(t *testing.T) {
	reset(t)
	path := filepath.Join(t.TempDir(), "qpanel.log")
	require.NoError(t, Initialize(Settings{Level: "error", File: path, DebugMode: true}))
	assert.Equal(t, zapcore.DebugLevel, Level())
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"DEBUG":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"error":   zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("chatty")
	assert.Error(t, err)
}

func TestInitializeRejectsUnknownFormat(t *testing.T) {
	reset(t)
	assert.Error(t, Initialize(Settings{Format: "xml"}))
}

func TestTimerThreshold(t *testing.T) {
	reset(t)
	path := filepath.Join(t.TempDir(), "qpanel.log")
	require.NoError(t, Initialize(Settings{Level: "warn", File: path}))

	timer := StartTimer(CategoryHTTP, "list versions")
	time.Sleep(5 * time.Millisecond)
	elapsed := timer.StopWithThreshold(time.Millisecond)
	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "list versions was slow", lines[0]["msg"])
}
