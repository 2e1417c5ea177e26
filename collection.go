package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

// collectionFlags are the editable fields of a collection entry.
type collectionFlags struct {
	rating      float64
	clearRating bool
	progress    float64
	status      string
	favorite    bool
	notes       string
	watched     string
}

func (f *collectionFlags) register(cmd *cobra.Command, forUpdate bool) {
	fl := cmd.Flags()
	fl.Float64Var(&f.rating, "rating", 0, "personal rating, 0 to 10")
	fl.Float64Var(&f.progress, "progress", 0, "watch progress, 0 to 1")
	fl.StringVar(&f.status, "status", "", "planned, watching, completed, or dropped")
	fl.BoolVar(&f.favorite, "favorite", false, "mark as favorite")
	fl.StringVar(&f.notes, "notes", "", "free-form notes")
	fl.StringVar(&f.watched, "watched", "", "when watched (RFC 3339 or YYYY-MM-DD)")

	if forUpdate {
		fl.BoolVar(&f.clearRating, "clear-rating", false, "remove the personal rating")
		cmd.MarkFlagsMutuallyExclusive("rating", "clear-rating")
	}
}

func (f *collectionFlags) entry(cmd *cobra.Command) (catalog.Collection, error) {
	entry := catalog.Collection{
		WatchProgress: f.progress,
		Status:        f.status,
		Favorite:      f.favorite,
		Notes:         f.notes,
	}

	if cmd.Flags().Changed("rating") {
		entry.PersonalRating = &f.rating
	}

	if f.watched != "" {
		watched, err := parseTimestamp("watched", f.watched)
		if err != nil {
			return entry, err
		}

		entry.WatchedAt = watched
	}

	return entry, nil
}

// patch builds a CollectionPatch from the flags the user actually set.
func (f *collectionFlags) patch(cmd *cobra.Command) (catalog.CollectionPatch, error) {
	var p catalog.CollectionPatch

	changed := cmd.Flags().Changed

	if changed("rating") {
		p.PersonalRating = &f.rating
	}

	p.ClearRating = f.clearRating

	if changed("progress") {
		p.WatchProgress = &f.progress
	}

	if changed("status") {
		p.Status = &f.status
	}

	if changed("favorite") {
		p.Favorite = &f.favorite
	}

	if changed("notes") {
		p.Notes = &f.notes
	}

	if changed("watched") {
		watched, err := parseTimestamp("watched", f.watched)
		if err != nil {
			return p, err
		}

		p.WatchedAt = watched
	}

	return p, nil
}

func newCollectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collection",
		Aliases: []string{"col"},
		Short:   "Manage your personal collection entries",
		Long: `Each media item has at most one collection entry holding your rating,
watch progress, status, and notes. Entries are addressed by media id.`,
	}

	cmd.AddCommand(newCollectionAddCmd())
	cmd.AddCommand(newCollectionGetCmd())
	cmd.AddCommand(newCollectionUpdateCmd())
	cmd.AddCommand(newCollectionRmCmd())
	cmd.AddCommand(newCollectionLsCmd())

	return cmd
}

func newCollectionAddCmd() *cobra.Command {
	var f collectionFlags

	cmd := &cobra.Command{
		Use:     "add <media-id>",
		Short:   "Add a media item to your collection",
		Example: `  mediavault collection add m-123 --status watching --progress 0.4 --rating 8.5`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := f.entry(cmd)
			if err != nil {
				return err
			}

			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				created, err := sess.Repos.Collections.Add(cmd.Context(), args[0], entry)
				if err != nil {
					return err
				}

				cc.Statusf("Added %s to collection\n", created.MediaID)

				return printCollection(cmd.OutOrStdout(), created, cc.Flags.JSON)
			})
		},
	}

	f.register(cmd, false)

	return cmd
}

func newCollectionGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <media-id>",
		Short: "Show the collection entry for a media item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				entry, err := sess.Repos.Collections.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				return printCollection(cmd.OutOrStdout(), entry, cc.Flags.JSON)
			})
		},
	}
}

func newCollectionUpdateCmd() *cobra.Command {
	var f collectionFlags

	cmd := &cobra.Command{
		Use:     "update <media-id>",
		Short:   "Change a collection entry",
		Example: `  mediavault collection update m-123 --status completed --progress 1 --favorite`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := f.patch(cmd)
			if err != nil {
				return err
			}

			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				updated, err := sess.Repos.Collections.Update(cmd.Context(), args[0], patch)
				if err != nil {
					return err
				}

				cc.Statusf("Updated collection entry for %s\n", updated.MediaID)

				return printCollection(cmd.OutOrStdout(), updated, cc.Flags.JSON)
			})
		},
	}

	f.register(cmd, true)

	return cmd
}

func newCollectionRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <media-id>",
		Short: "Remove a media item from your collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				if err := sess.Repos.Collections.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}

				cc.Statusf("Removed %s from collection\n", args[0])

				return nil
			})
		},
	}
}

func newCollectionLsCmd() *cobra.Command {
	var (
		q        catalog.Query
		lf       listFlags
		favorite bool
	)

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List collection entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lf.apply(&q)

			if cmd.Flags().Changed("favorite") {
				q.Favorite = &favorite
			}

			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				page, err := sess.Repos.Collections.List(cmd.Context(), q)
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					return printJSON(cmd.OutOrStdout(), page)
				}

				printCollectionTable(cmd.OutOrStdout(), page)

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&q.Status, "status", "", "filter by status")
	cmd.Flags().BoolVar(&favorite, "favorite", false, "filter by favorite flag")
	lf.register(cmd, catalog.EntityCollection)

	return cmd
}

func formatRating(r *float64) string {
	if r == nil {
		return "-"
	}

	return strconv.FormatFloat(*r, 'f', 1, 64)
}

func formatProgress(p float64) string {
	return fmt.Sprintf("%.0f%%", p*100)
}

func printCollection(w io.Writer, c *catalog.Collection, asJSON bool) error {
	if asJSON {
		return printJSON(w, c)
	}

	fmt.Fprintf(w, "Media:     %s\n", c.MediaID)
	fmt.Fprintf(w, "Rating:    %s\n", formatRating(c.PersonalRating))
	fmt.Fprintf(w, "Progress:  %s\n", formatProgress(c.WatchProgress))

	if c.Status != "" {
		fmt.Fprintf(w, "Status:    %s\n", c.Status)
	}

	fmt.Fprintf(w, "Favorite:  %s\n", yesNo(c.Favorite))

	if c.Notes != "" {
		fmt.Fprintf(w, "Notes:     %s\n", c.Notes)
	}

	fmt.Fprintf(w, "Watched:   %s\n", formatOptionalTime(c.WatchedAt))
	printSyncMeta(w, &c.SyncMeta)

	return nil
}

func printCollectionTable(w io.Writer, page catalog.Page[catalog.Collection]) {
	if len(page.Items) == 0 {
		fmt.Fprintln(w, "Collection is empty.")
		return
	}

	headers := []string{"MEDIA", "RATING", "PROGRESS", "STATUS", "FAVORITE", "SYNCED"}
	rows := make([][]string, len(page.Items))

	for i := range page.Items {
		c := &page.Items[i]
		rows[i] = []string{
			c.MediaID,
			formatRating(c.PersonalRating),
			formatProgress(c.WatchProgress),
			c.Status,
			yesNo(c.Favorite),
			yesNo(c.IsSynced),
		}
	}

	printTable(w, headers, rows)
	printListFooter(w, len(page.Items), page.Offset, page.Total)
}
