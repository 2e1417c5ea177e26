package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

// listFlags are the sort and pagination flags shared by every ls command.
type listFlags struct {
	sort   string
	desc   bool
	limit  int
	offset int
}

func (f *listFlags) register(cmd *cobra.Command, t catalog.EntityType) {
	keys := catalog.SortKeysFor(t)
	names := make([]string, len(keys))

	for i, k := range keys {
		names[i] = string(k)
	}

	cmd.Flags().StringVar(&f.sort, "sort", "", fmt.Sprintf("sort key %v (default %s)", names, catalog.DefaultSort(t)))
	cmd.Flags().BoolVar(&f.desc, "desc", false, "sort descending")
	cmd.Flags().IntVar(&f.limit, "limit", catalog.DefaultLimit, "maximum number of results")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "number of results to skip")
}

func (f *listFlags) apply(q *catalog.Query) {
	q.Sort = catalog.SortKey(f.sort)
	q.Desc = f.desc
	q.Limit = f.limit
	q.Offset = f.offset
}

// parseDate parses a YYYY-MM-DD flag value. Empty means unset.
func parseDate(flag, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil //nolint:nilnil // nil date is a valid "unset"
	}

	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, fmt.Errorf("--%s: want YYYY-MM-DD, got %q", flag, value)
	}

	return &t, nil
}

// parseTimestamp accepts RFC 3339 or a bare date.
func parseTimestamp(flag, value string) (*time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}

	return parseDate(flag, value)
}

// printListFooter reports how much of a paged result was shown.
func printListFooter(w io.Writer, shown, offset, total int) {
	if total > shown {
		fmt.Fprintf(w, "\nShowing %d-%d of %d\n", offset+1, offset+shown, total)
	}
}
