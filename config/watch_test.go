package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const watchTimeout = 3 * time.Second

func waitForChange(t *testing.T, ch <-chan Config) Config {
	t.Helper()
	select {
	case cfg := <-ch:
		return cfg
	case <-time.After(watchTimeout):
		t.Fatal("timed out waiting for a reload")
		return Config{}
	}
}

func waitForError(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(watchTimeout):
		t.Fatal("timed out waiting for a watch error")
		return nil
	}
}

func startWatcher(t *testing.T, loader *Loader) (<-chan Config, <-chan error, *Watcher) {
	t.Helper()
	changes := make(chan Config, 8)
	errs := make(chan error, 8)
	w, err := loader.Watch(context.Background(),
		func(cfg Config) { changes <- cfg },
		func(err error) { errs <- err },
	)
	require.NoError(t, err)
	t.Cleanup(w.Stop)
	return changes, errs, w
}

func TestWatchReload(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", "logging:\n  level: info\n")
	loader := NewLoader(path)
	changes, _, _ := startWatcher(t, loader)

	// The initial write predates the watcher, so nothing fires yet
	select {
	case <-changes:
		t.Fatal("Expected no reload before the file changes")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600))

	cfg := waitForChange(t, changes)
	assert.Equal(t, LogLevelDebug, cfg.Logging.Level)
}

func TestWatchSurvivesInvalidReload(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", "logging:\n  level: info\n")
	loader := NewLoader(path)
	changes, errs, _ := startWatcher(t, loader)

	// A broken rewrite is reported, not applied
	require.NoError(t, os.WriteFile(path, []byte("logging: [unclosed"), 0o600))
	err := waitForError(t, errs)
	assert.Contains(t, err.Error(), "config:")

	// The watcher keeps going once the file is fixed
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o600))
	cfg := waitForChange(t, changes)
	assert.Equal(t, LogLevelWarn, cfg.Logging.Level)
}

func TestWatchReportsRemoval(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", "logging:\n  level: info\n")
	loader := NewLoader(path)
	_, errs, _ := startWatcher(t, loader)

	require.NoError(t, os.Remove(path))

	err := waitForError(t, errs)
	assert.Error(t, err)
}

func TestWatchDebouncesBursts(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", "logging:\n  level: info\n")
	loader := NewLoader(path)
	changes, _, _ := startWatcher(t, loader)

	// A burst of writes settles on a reload carrying the final content
	for _, level := range []string{"debug", "warn", "error"} {
		require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: "+level+"\n"), 0o600))
	}

	cfg := waitForChange(t, changes)
	for cfg.Logging.Level != LogLevelError {
		cfg = waitForChange(t, changes)
	}
}

func TestWatchIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o600))

	loader := NewLoader(path)
	changes, _, _ := startWatcher(t, loader)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o600))

	select {
	case <-changes:
		t.Fatal("Expected sibling writes to be ignored")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatchRequiresCallback(t *testing.T) {
	loader := NewLoader(writeConfigFile(t, "config.yaml", "logging:\n  level: info\n"))

	_, err := loader.Watch(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "change callback")
}

func TestWatchRequiresFiles(t *testing.T) {
	_, err := NewLoader().Watch(context.Background(), func(Config) {}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files")
}

func TestWatcherStop(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", "logging:\n  level: info\n")
	loader := NewLoader(path)

	w, err := loader.Watch(context.Background(), func(Config) {}, nil)
	require.NoError(t, err)

	w.Stop()
	w.Stop()

	var nilWatcher *Watcher
	nilWatcher.Stop()
}
