package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

func newActorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actor",
		Short: "Manage actors and their media links",
	}

	cmd.AddCommand(newActorAddCmd())
	cmd.AddCommand(newActorGetCmd())
	cmd.AddCommand(newActorUpdateCmd())
	cmd.AddCommand(newActorRmCmd())
	cmd.AddCommand(newActorLsCmd())
	cmd.AddCommand(newActorLinkCmd())
	cmd.AddCommand(newActorUnlinkCmd())

	return cmd
}

func newActorAddCmd() *cobra.Command {
	var (
		id, name, birth string
		aliases         []string
	)

	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Add an actor",
		Example: `  mediavault actor add --name "Chihiro Ogino" --alias Sen --birth 1991-01-01`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			birthDate, err := parseDate("birth", birth)
			if err != nil {
				return err
			}

			actor := catalog.Actor{ID: id, Name: name, Aliases: aliases, BirthDate: birthDate}

			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				created, err := sess.Repos.Actors.Add(cmd.Context(), actor)
				if err != nil {
					return err
				}

				cc.Statusf("Added actor %s\n", created.ID)

				return printActor(cmd.OutOrStdout(), created, cc.Flags.JSON)
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "actor id (default: generated)")
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringSliceVar(&aliases, "alias", nil, "alias (repeatable)")
	cmd.Flags().StringVar(&birth, "birth", "", "birth date (YYYY-MM-DD)")

	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}

	return cmd
}

func newActorGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				actor, err := sess.Repos.Actors.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				return printActor(cmd.OutOrStdout(), actor, cc.Flags.JSON)
			})
		},
	}
}

func newActorUpdateCmd() *cobra.Command {
	var (
		name, birth string
		aliases     []string
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch catalog.ActorPatch

			if cmd.Flags().Changed("name") {
				patch.Name = &name
			}

			if cmd.Flags().Changed("alias") {
				patch.Aliases = &aliases
			}

			if cmd.Flags().Changed("birth") {
				birthDate, err := parseDate("birth", birth)
				if err != nil {
					return err
				}

				patch.BirthDate = birthDate
			}

			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				updated, err := sess.Repos.Actors.Update(cmd.Context(), args[0], patch)
				if err != nil {
					return err
				}

				cc.Statusf("Updated actor %s\n", updated.ID)

				return printActor(cmd.OutOrStdout(), updated, cc.Flags.JSON)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringSliceVar(&aliases, "alias", nil, "replace aliases (repeatable)")
	cmd.Flags().StringVar(&birth, "birth", "", "birth date (YYYY-MM-DD)")

	return cmd
}

func newActorRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an actor and unlink it from all media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				if err := sess.Repos.Actors.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}

				cc.Statusf("Deleted actor %s\n", args[0])

				return nil
			})
		},
	}
}

func newActorLsCmd() *cobra.Command {
	var (
		q  catalog.Query
		lf listFlags
	)

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List actors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lf.apply(&q)

			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				page, err := sess.Repos.Actors.List(cmd.Context(), q)
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					return printJSON(cmd.OutOrStdout(), page)
				}

				printActorTable(cmd.OutOrStdout(), page)

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&q.Keyword, "q", "", "keyword search")
	cmd.Flags().StringVar(&q.MediaID, "media", "", "only actors linked to this media id")
	lf.register(cmd, catalog.EntityActor)

	return cmd
}

func newActorLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "link <media-id> <actor-id>",
		Short:   "Link an actor to a media item",
		Example: `  mediavault actor link m-heat a-pacino`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				item, err := sess.Repos.Actors.Link(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}

				cc.Statusf("Linked actor %s to media %s\n", args[1], item.ID)

				return nil
			})
		},
	}
}

func newActorUnlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <media-id> <actor-id>",
		Short: "Remove an actor from a media item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				item, err := sess.Repos.Actors.Unlink(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}

				cc.Statusf("Unlinked actor %s from media %s\n", args[1], item.ID)

				return nil
			})
		},
	}
}

func printActor(w io.Writer, a *catalog.Actor, asJSON bool) error {
	if asJSON {
		return printJSON(w, a)
	}

	fmt.Fprintf(w, "ID:        %s\n", a.ID)
	fmt.Fprintf(w, "Name:      %s\n", a.Name)

	if len(a.Aliases) > 0 {
		fmt.Fprintf(w, "Aliases:   %s\n", strings.Join(a.Aliases, ", "))
	}

	fmt.Fprintf(w, "Born:      %s\n", formatDate(a.BirthDate))
	printSyncMeta(w, &a.SyncMeta)

	return nil
}

func printActorTable(w io.Writer, page catalog.Page[catalog.Actor]) {
	if len(page.Items) == 0 {
		fmt.Fprintln(w, "No actors found.")
		return
	}

	headers := []string{"ID", "NAME", "BORN", "SYNCED"}
	rows := make([][]string, len(page.Items))

	for i := range page.Items {
		a := &page.Items[i]
		rows[i] = []string{a.ID, a.Name, formatDate(a.BirthDate), yesNo(a.IsSynced)}
	}

	printTable(w, headers, rows)
	printListFooter(w, len(page.Items), page.Offset, page.Total)
}
