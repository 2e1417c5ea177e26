package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResolved() *Resolved {
	return &Resolved{Config: *DefaultConfig(), Path: "/etc/mediavault/config.toml"}
}

func TestNewHolder(t *testing.T) {
	cfg := testResolved()
	h := NewHolder(cfg, cfg.Path)

	require.NotNil(t, h)
	assert.Equal(t, cfg, h.Config())
	assert.Equal(t, "/etc/mediavault/config.toml", h.Path())
}

func TestHolder_Update(t *testing.T) {
	cfg1 := testResolved()
	h := NewHolder(cfg1, cfg1.Path)

	cfg2 := testResolved()
	cfg2.Sync.Interval = "10m"

	h.Update(cfg2)

	got := h.Config()
	assert.Equal(t, cfg2, got)
	assert.NotEqual(t, cfg1, got)
}

func TestHolder_ConcurrentReadWrite(t *testing.T) {
	h := NewHolder(testResolved(), "/tmp/config.toml")

	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 100 {
				assert.NotNil(t, h.Config())
				_ = h.Path()
			}
		}()
	}

	for range 5 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 100 {
				h.Update(testResolved())
			}
		}()
	}

	wg.Wait()
}
