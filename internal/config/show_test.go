package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective(t *testing.T) {
	r := testResolved()
	r.Catalog.DBPath = "/data/catalog.db"
	r.Remote.URL = "https://vault.example"
	r.Remote.APIToken = "super-secret"
	r.Mode = "connected"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(r, &buf))

	out := buf.String()
	for _, want := range []string{
		"[catalog]", "[remote]", "[sync]", "[logging]",
		`db_path = "/data/catalog.db"`,
		`"https://vault.example"`,
		`"********"`,
		"MEDIAVAULT_MODE",
		"page_size     = 200",
	} {
		assert.Contains(t, out, want)
	}

	assert.NotContains(t, out, "super-secret")
	assert.NotContains(t, out, "log_file", "empty log file omitted")
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestRenderEffective_WriteError(t *testing.T) {
	assert.Error(t, RenderEffective(testResolved(), failWriter{}))
}
