package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewWatcher_RequiresPath(t *testing.T) {
	_, err := NewWatcher("", nil, nil)
	require.ErrorIs(t, err, ErrWatcherFailed)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "governance:\n  memory_locked: false\n")

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, zaptest.NewLogger(t), func(cfg *Config) { changes <- cfg })
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeConfig(t, path, "governance:\n  memory_locked: true\n")

	select {
	case cfg := <-changes:
		assert.True(t, cfg.Governance.MemoryLocked)
		assert.Equal(t, path, cfg.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_KeepsPreviousConfigOnInvalidFile(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "governance:\n  batch_size: 5\n")

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, zaptest.NewLogger(t), func(cfg *Config) { changes <- cfg })
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	writeConfig(t, path, "governance:\n  batch_size: 0\n")
	select {
	case <-changes:
		t.Fatal("invalid config must not be delivered")
	case <-time.After(300 * time.Millisecond):
	}

	writeConfig(t, path, "governance:\n  batch_size: 7\n")
	select {
	case cfg := <-changes:
		assert.Equal(t, 7, cfg.Governance.BatchSize)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after fixing the file")
	}
}
