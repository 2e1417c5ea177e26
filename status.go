package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/mediavault/internal/catalog"
	"github.com/tonimelisma/mediavault/internal/mode"
	"github.com/tonimelisma/mediavault/internal/store"
	"github.com/tonimelisma/mediavault/internal/sync"
)

// maxStatusErrors bounds the errors listed in text output.
const maxStatusErrors = 10

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show mode, pending changes, and the last sync outcome",
		Long: `Display the effective mode, the number of local changes waiting to reach
the remote, and the outcome of the most recent sync cycle, including when
the catalog last synced successfully and any errors it reported.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

// statusReport is the JSON shape of `status`.
type statusReport struct {
	Mode     mode.State           `json:"mode"`
	Pending  int                  `json:"pending_count"`
	LastSync *sync.StatusSnapshot `json:"last_sync,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(sess *Session, cc *CLIContext) error {
		ctx := cmd.Context()

		pending, err := countPending(ctx, sess.Store)
		if err != nil {
			return err
		}

		last, err := loadStatus(ctx, sess)
		if err != nil {
			return err
		}

		report := statusReport{Mode: sess.Modes.State(), Pending: pending, LastSync: last}

		if cc.Flags.JSON {
			return printJSON(cmd.OutOrStdout(), report)
		}

		printStatusText(cmd.OutOrStdout(), &report)

		return nil
	})
}

// countPending counts unsynced records plus queued deletes, the same work
// the next push will attempt.
func countPending(ctx context.Context, s *store.Store) (int, error) {
	n, err := s.CountUnsynced(ctx)
	if err != nil {
		return 0, err
	}

	changes, err := s.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	for i := range changes {
		if changes[i].Operation == catalog.OpDelete {
			n++
		}
	}

	return n, nil
}

func printStatusText(w io.Writer, r *statusReport) {
	remoteURL := r.Mode.RemoteURL
	if remoteURL == "" {
		remoteURL = "(not configured)"
	}

	modeLine := string(r.Mode.Mode)
	if r.Mode.Preferred != r.Mode.Mode {
		modeLine += fmt.Sprintf(" (preferred %s, remote unreachable)", r.Mode.Preferred)
	}

	fmt.Fprintf(w, "Mode:          %s\n", modeLine)
	fmt.Fprintf(w, "Remote:        %s\n", remoteURL)
	fmt.Fprintf(w, "Pending:       %d\n", r.Pending)

	if r.LastSync == nil {
		fmt.Fprintln(w, "Last sync:     never")
		return
	}

	fmt.Fprintf(w, "Last sync:     %s", r.LastSync.State)

	if res := r.LastSync.LastResult; res != nil {
		fmt.Fprintf(w, " at %s (%s)", formatTime(res.StartedAt), summarizeResult(res))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Last success:  %s\n", formatOptionalTime(r.LastSync.LastSuccessAt))

	if len(r.LastSync.Errors) == 0 {
		return
	}

	fmt.Fprintln(w, "Errors:")

	for i, e := range r.LastSync.Errors {
		if i == maxStatusErrors {
			fmt.Fprintf(w, "  ... and %d more\n", len(r.LastSync.Errors)-maxStatusErrors)
			break
		}

		fmt.Fprintf(w, "  %s\n", e)
	}
}
