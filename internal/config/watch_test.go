package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadsValidChangesAndIgnoresInvalidOnes(t *testing.T) {
	path := writeTestConfig(t, "[sync]\ninterval = \"1m\"\n")

	load := func() (*Resolved, error) {
		cfg, err := Load(path)
		if err != nil {
			return nil, err
		}

		return &Resolved{Config: *cfg, Path: path}, nil
	}

	initial, err := load()
	require.NoError(t, err)

	h := NewHolder(initial, path)
	reloaded := make(chan *Resolved, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- Watch(ctx, h, load, slog.New(slog.NewTextHandler(io.Discard, nil)), func(r *Resolved) {
			reloaded <- r
		})
	}()

	// The watcher registers asynchronously; keep rewriting until it sees one.
	require.Eventually(t, func() bool {
		require.NoError(t, os.WriteFile(path, []byte("[sync]\ninterval = \"2m\"\n"), 0o600))

		select {
		case r := <-reloaded:
			return r.Sync.Interval == "2m"
		case <-time.After(300 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 10*time.Millisecond)

	assert.Equal(t, "2m", h.Config().Sync.Interval)

	require.NoError(t, os.WriteFile(path, []byte("[sync]\ninterval = \"nope\"\n"), 0o600))

	select {
	case r := <-reloaded:
		t.Fatalf("invalid config applied: %+v", r.Sync)
	case <-time.After(500 * time.Millisecond):
	}

	assert.Equal(t, "2m", h.Config().Sync.Interval, "previous config stays in effect")

	cancel()
	require.NoError(t, <-done)
}
