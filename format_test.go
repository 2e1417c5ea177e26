package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatTime(t *testing.T) {
	now := time.Now()
	sameYear := time.Date(now.Year(), time.March, 15, 10, 30, 0, 0, time.Local)
	diffYear := time.Date(2020, time.December, 25, 8, 0, 0, 0, time.Local)

	t.Run("same year", func(t *testing.T) {
		result := formatTime(sameYear)
		assert.Contains(t, result, "Mar")
		assert.Contains(t, result, "15")
		assert.Contains(t, result, "10:30")
	})

	t.Run("different year", func(t *testing.T) {
		result := formatTime(diffYear)
		assert.Contains(t, result, "Dec")
		assert.Contains(t, result, "25")
		assert.Contains(t, result, "2020")
	})

	t.Run("zero", func(t *testing.T) {
		assert.Equal(t, "-", formatTime(time.Time{}))
		assert.Equal(t, "-", formatOptionalTime(nil))
	})
}

func TestFormatDate(t *testing.T) {
	d := time.Date(1995, time.December, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "1995-12-15", formatDate(&d))
	assert.Equal(t, "-", formatDate(nil))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"千と千尋の神隠し", 5, "千と..."},
		{"abcdef", 3, "abc"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, truncate(tt.in, tt.n), tt.in)
	}
}

func TestYesNo(t *testing.T) {
	assert.Equal(t, "yes", yesNo(true))
	assert.Equal(t, "no", yesNo(false))
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	headers := []string{"ID", "TITLE", "RELEASED"}
	rows := [][]string{
		{"m-heat", "Heat", "1995-12-15"},
		{"m-spirited", "Spirited Away", "-"},
	}

	printTable(&buf, headers, rows)
	output := buf.String()

	assert.Contains(t, output, "TITLE")
	assert.Contains(t, output, "RELEASED")
	assert.Contains(t, output, "m-spirited")
	assert.Contains(t, output, "Spirited Away")

	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	assert.Len(t, lines, 3)

	// Columns line up.
	assert.Equal(t, strings.Index(lines[0], "TITLE"), strings.Index(lines[1], "Heat"))

	for _, line := range lines {
		assert.Equal(t, strings.TrimRight(line, " "), line, "no trailing padding")
	}
}
