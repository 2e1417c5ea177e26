package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

// conflictIDPrefixLen is the number of characters to show for the conflict ID
// in table output. 8 chars is sufficient for uniqueness in typical use.
const conflictIDPrefixLen = 8

func newConflictsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List sync conflicts, newest first",
		Long: `Display conflicts detected while pulling: a record edited locally and
remotely between syncs. The later edit won; the losing version is kept in
the conflict log (shown with --json).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				conflicts, err := sess.Store.ListConflicts(cmd.Context(), limit)
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					if conflicts == nil {
						conflicts = []catalog.ConflictRecord{}
					}

					return printJSON(cmd.OutOrStdout(), conflicts)
				}

				printConflictsTable(cmd.OutOrStdout(), conflicts)

				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", catalog.DefaultLimit, "maximum number of conflicts")

	return cmd
}

func printConflictsTable(w io.Writer, conflicts []catalog.ConflictRecord) {
	if len(conflicts) == 0 {
		fmt.Fprintln(w, "No conflicts.")
		return
	}

	headers := []string{"ID", "TYPE", "ENTITY", "WINNER", "LOCAL EDIT", "REMOTE EDIT", "DETECTED"}
	rows := make([][]string, len(conflicts))

	for i := range conflicts {
		c := &conflicts[i]

		idPrefix := c.ID
		if len(idPrefix) > conflictIDPrefixLen {
			idPrefix = idPrefix[:conflictIDPrefixLen]
		}

		rows[i] = []string{
			idPrefix,
			string(c.EntityType),
			c.EntityID,
			string(c.Resolution),
			formatTime(c.LocalUpdatedAt),
			formatTime(c.RemoteUpdatedAt),
			formatTime(c.DetectedAt),
		}
	}

	printTable(w, headers, rows)
}
