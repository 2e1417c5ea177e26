package main

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tonimelisma/mediavault/internal/mode"
	"github.com/tonimelisma/mediavault/internal/sync"
)

func TestPrintStatusText_NeverSynced(t *testing.T) {
	var buf bytes.Buffer

	printStatusText(&buf, &statusReport{
		Mode:    mode.State{Mode: mode.Standalone, Preferred: mode.Standalone},
		Pending: 4,
	})

	out := buf.String()
	assert.Contains(t, out, "Mode:          standalone\n")
	assert.Contains(t, out, "(not configured)")
	assert.Contains(t, out, "Pending:       4")
	assert.Contains(t, out, "Last sync:     never")
}

func TestPrintStatusText_PreferredUnreachable(t *testing.T) {
	var buf bytes.Buffer

	printStatusText(&buf, &statusReport{
		Mode: mode.State{Mode: mode.Standalone, Preferred: mode.Connected, RemoteURL: "https://vault.example"},
	})

	out := buf.String()
	assert.Contains(t, out, "standalone (preferred connected, remote unreachable)")
	assert.Contains(t, out, "https://vault.example")
}

func TestPrintStatusText_LastSyncWithErrors(t *testing.T) {
	var buf bytes.Buffer

	success := time.Now().Add(-time.Hour)
	errs := make([]string, maxStatusErrors+2)

	for i := range errs {
		errs[i] = fmt.Sprintf("push media:m-%d: remote: HTTP 500", i)
	}

	printStatusText(&buf, &statusReport{
		Mode: mode.State{Mode: mode.Connected, Preferred: mode.Connected, RemoteURL: "https://vault.example"},
		LastSync: &sync.StatusSnapshot{
			State:         sync.StateError,
			LastSuccessAt: &success,
			Errors:        errs,
			LastResult:    &sync.Result{ItemsPushed: 3, ItemsPulled: 1, StartedAt: time.Now()},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Last sync:     error at ")
	assert.Contains(t, out, "pushed 3, pulled 1")
	assert.Contains(t, out, "m-0:")
	assert.NotContains(t, out, fmt.Sprintf("m-%d:", maxStatusErrors))
	assert.Contains(t, out, "... and 2 more")
}
