package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

// mediaFlags are the editable media item fields.
type mediaFlags struct {
	id            string
	title         string
	originalTitle string
	mediaType     string
	studio        string
	series        string
	release       string
	runtime       int
	tags          []string
	actors        []string
}

func (f *mediaFlags) register(cmd *cobra.Command, withIdentity bool) {
	fl := cmd.Flags()

	if withIdentity {
		fl.StringVar(&f.id, "id", "", "media id (default: generated)")
		fl.StringSliceVar(&f.actors, "actor", nil, "linked actor id (repeatable)")
	}

	fl.StringVar(&f.title, "title", "", "title")
	fl.StringVar(&f.originalTitle, "original-title", "", "original title")
	fl.StringVar(&f.mediaType, "type", "", "movie, series, episode, documentary, or other")
	fl.StringVar(&f.studio, "studio", "", "studio")
	fl.StringVar(&f.series, "series", "", "series name")
	fl.StringVar(&f.release, "release", "", "release date (YYYY-MM-DD)")
	fl.IntVar(&f.runtime, "runtime", 0, "runtime in minutes")
	fl.StringSliceVar(&f.tags, "tag", nil, "tag (repeatable)")
}

func (f *mediaFlags) item() (catalog.MediaItem, error) {
	release, err := parseDate("release", f.release)
	if err != nil {
		return catalog.MediaItem{}, err
	}

	return catalog.MediaItem{
		ID:             f.id,
		Title:          f.title,
		OriginalTitle:  f.originalTitle,
		Type:           f.mediaType,
		Studio:         f.studio,
		Series:         f.series,
		ReleaseDate:    release,
		RuntimeMinutes: f.runtime,
		Tags:           f.tags,
		ActorIDs:       f.actors,
	}, nil
}

// patch builds a MediaPatch from the flags the user actually set.
func (f *mediaFlags) patch(cmd *cobra.Command) (catalog.MediaPatch, error) {
	var p catalog.MediaPatch

	changed := cmd.Flags().Changed

	if changed("title") {
		p.Title = &f.title
	}

	if changed("original-title") {
		p.OriginalTitle = &f.originalTitle
	}

	if changed("type") {
		p.Type = &f.mediaType
	}

	if changed("studio") {
		p.Studio = &f.studio
	}

	if changed("series") {
		p.Series = &f.series
	}

	if changed("release") {
		release, err := parseDate("release", f.release)
		if err != nil {
			return p, err
		}

		p.ReleaseDate = release
	}

	if changed("runtime") {
		p.RuntimeMinutes = &f.runtime
	}

	if changed("tag") {
		p.Tags = &f.tags
	}

	return p, nil
}

func newMediaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Manage media items",
	}

	cmd.AddCommand(newMediaAddCmd())
	cmd.AddCommand(newMediaGetCmd())
	cmd.AddCommand(newMediaUpdateCmd())
	cmd.AddCommand(newMediaRmCmd())
	cmd.AddCommand(newMediaLsCmd())

	return cmd
}

func newMediaAddCmd() *cobra.Command {
	var f mediaFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a media item",
		Example: `  mediavault media add --title "Spirited Away" --type movie --release 2001-07-20
  mediavault media add --title "Heat" --actor a-pacino --actor a-deniro`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			item, err := f.item()
			if err != nil {
				return err
			}

			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				created, err := sess.Repos.Media.Add(cmd.Context(), item)
				if err != nil {
					return err
				}

				cc.Statusf("Added media %s\n", created.ID)

				return printMedia(cmd.OutOrStdout(), created, cc.Flags.JSON)
			})
		},
	}

	f.register(cmd, true)

	if err := cmd.MarkFlagRequired("title"); err != nil {
		panic(err)
	}

	return cmd
}

func newMediaGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a media item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				item, err := sess.Repos.Media.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				return printMedia(cmd.OutOrStdout(), item, cc.Flags.JSON)
			})
		},
	}
}

func newMediaUpdateCmd() *cobra.Command {
	var f mediaFlags

	cmd := &cobra.Command{
		Use:     "update <id>",
		Short:   "Change fields of a media item",
		Example: `  mediavault media update m-123 --title "Spirited Away (2001)" --tag ghibli`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := f.patch(cmd)
			if err != nil {
				return err
			}

			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				updated, err := sess.Repos.Media.Update(cmd.Context(), args[0], patch)
				if err != nil {
					return err
				}

				cc.Statusf("Updated media %s\n", updated.ID)

				return printMedia(cmd.OutOrStdout(), updated, cc.Flags.JSON)
			})
		},
	}

	f.register(cmd, false)

	return cmd
}

func newMediaRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a media item and its collection entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				if err := sess.Repos.Media.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}

				cc.Statusf("Deleted media %s\n", args[0])

				return nil
			})
		},
	}
}

func newMediaLsCmd() *cobra.Command {
	var (
		q  catalog.Query
		lf listFlags
	)

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List media items",
		Example: `  mediavault media ls --type movie --sort release_date --desc
  mediavault media ls --q "spirited" --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lf.apply(&q)

			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				page, err := sess.Repos.Media.List(cmd.Context(), q)
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					return printJSON(cmd.OutOrStdout(), page)
				}

				printMediaTable(cmd.OutOrStdout(), page)

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&q.Type, "type", "", "filter by media type")
	cmd.Flags().StringVar(&q.Studio, "studio", "", "filter by studio")
	cmd.Flags().StringVar(&q.Series, "series", "", "filter by series")
	cmd.Flags().StringVar(&q.Keyword, "q", "", "keyword search")
	cmd.Flags().StringVar(&q.ActorID, "actor", "", "filter by linked actor id")
	lf.register(cmd, catalog.EntityMedia)

	return cmd
}

func printMedia(w io.Writer, m *catalog.MediaItem, asJSON bool) error {
	if asJSON {
		return printJSON(w, m)
	}

	fmt.Fprintf(w, "ID:        %s\n", m.ID)
	fmt.Fprintf(w, "Title:     %s\n", m.Title)

	if m.OriginalTitle != "" {
		fmt.Fprintf(w, "Original:  %s\n", m.OriginalTitle)
	}

	if m.Type != "" {
		fmt.Fprintf(w, "Type:      %s\n", m.Type)
	}

	if m.Studio != "" {
		fmt.Fprintf(w, "Studio:    %s\n", m.Studio)
	}

	if m.Series != "" {
		fmt.Fprintf(w, "Series:    %s\n", m.Series)
	}

	fmt.Fprintf(w, "Released:  %s\n", formatDate(m.ReleaseDate))

	if m.RuntimeMinutes > 0 {
		fmt.Fprintf(w, "Runtime:   %d min\n", m.RuntimeMinutes)
	}

	if len(m.Tags) > 0 {
		fmt.Fprintf(w, "Tags:      %s\n", strings.Join(m.Tags, ", "))
	}

	if len(m.ActorIDs) > 0 {
		fmt.Fprintf(w, "Actors:    %s\n", strings.Join(m.ActorIDs, ", "))
	}

	printSyncMeta(w, &m.SyncMeta)

	return nil
}

func printSyncMeta(w io.Writer, m *catalog.SyncMeta) {
	fmt.Fprintf(w, "Updated:   %s\n", formatTime(m.UpdatedAt))
	fmt.Fprintf(w, "Synced:    %s\n", yesNo(m.IsSynced))
}

// mediaTitleWidth bounds the title column in table output.
const mediaTitleWidth = 48

func printMediaTable(w io.Writer, page catalog.Page[catalog.MediaItem]) {
	if len(page.Items) == 0 {
		fmt.Fprintln(w, "No media found.")
		return
	}

	headers := []string{"ID", "TITLE", "TYPE", "RELEASED", "ACTORS", "SYNCED"}
	rows := make([][]string, len(page.Items))

	for i := range page.Items {
		m := &page.Items[i]
		rows[i] = []string{
			m.ID,
			truncate(m.Title, mediaTitleWidth),
			m.Type,
			formatDate(m.ReleaseDate),
			strconv.Itoa(len(m.ActorIDs)),
			yesNo(m.IsSynced),
		}
	}

	printTable(w, headers, rows)
	printListFooter(w, len(page.Items), page.Offset, page.Total)
}
