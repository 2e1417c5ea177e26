package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tonimelisma/mediavault/internal/config"
	"github.com/tonimelisma/mediavault/internal/sync"
)

func TestSummarizeResult(t *testing.T) {
	tests := []struct {
		name string
		res  sync.Result
		want string
	}{
		{"counts only", sync.Result{ItemsPushed: 2, ItemsPulled: 5}, "pushed 2, pulled 5"},
		{"deferred", sync.Result{ItemsPushed: 1, Deferred: 3}, "pushed 1, pulled 0, deferred 3"},
		{"conflicts", sync.Result{ItemsPulled: 4, Conflicts: 1}, "pushed 0, pulled 4, 1 conflict(s)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, summarizeResult(&tt.res))
		})
	}
}

func TestPrintSyncResult(t *testing.T) {
	var buf bytes.Buffer

	printSyncResult(&buf, &sync.Result{Success: true, ItemsPushed: 1, Duration: 1500 * time.Microsecond})
	assert.Equal(t, "Sync complete: pushed 1, pulled 0 (2ms)\n", buf.String())

	buf.Reset()

	printSyncResult(&buf, &sync.Result{Errors: []string{"push actor:a-1: remote: HTTP 422"}})
	assert.Contains(t, buf.String(), "Sync finished with errors")
	assert.Contains(t, buf.String(), "  error: push actor:a-1: remote: HTTP 422\n")
}

func TestWaitForIntervalChange(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	withInterval := func(interval string) *config.Resolved {
		cfg := config.DefaultConfig()
		cfg.Sync.Interval = interval

		return &config.Resolved{Config: *cfg}
	}

	t.Run("same interval keeps waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		reloaded := make(chan *config.Resolved, 1)
		reloaded <- withInterval("5m")

		done := make(chan bool, 1)
		go func() { done <- waitForIntervalChange(ctx, reloaded, 5*time.Minute, logger) }()

		select {
		case <-done:
			t.Fatal("returned without an interval change")
		case <-time.After(50 * time.Millisecond):
		}

		cancel()
		assert.False(t, <-done)
	})

	t.Run("changed interval", func(t *testing.T) {
		reloaded := make(chan *config.Resolved, 1)
		reloaded <- withInterval("30s")

		assert.True(t, waitForIntervalChange(context.Background(), reloaded, 5*time.Minute, logger))
	})
}

func TestSleepCtx(t *testing.T) {
	assert.True(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepCtx(ctx, time.Hour))
}
