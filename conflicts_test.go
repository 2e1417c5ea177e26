package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

func TestPrintConflictsTable_Empty(t *testing.T) {
	var buf bytes.Buffer

	printConflictsTable(&buf, nil)
	assert.Equal(t, "No conflicts.\n", buf.String())
}

func TestPrintConflictsTable(t *testing.T) {
	var buf bytes.Buffer

	now := time.Now()
	printConflictsTable(&buf, []catalog.ConflictRecord{{
		ID:              "0f8e2b1a-93c4-4de0-8a51-6b7c2d9e0f11",
		EntityType:      catalog.EntityMedia,
		EntityID:        "m-heat",
		Resolution:      catalog.RemoteWins,
		LocalUpdatedAt:  now.Add(-time.Minute),
		RemoteUpdatedAt: now,
		DetectedAt:      now,
	}})

	out := buf.String()
	assert.Contains(t, out, "0f8e2b1a ")
	assert.NotContains(t, out, "93c4", "id is shortened")
	assert.Contains(t, out, "m-heat")
	assert.Contains(t, out, "remote_wins")
}
