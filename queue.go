package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

// Queue entry states shown by `queue ls`.
const (
	queueStatePending = "pending"
	queueStateBackoff = "backoff"
	queueStateFailed  = "failed"
)

// queueErrorWidth bounds the last-error column in table output.
const queueErrorWidth = 60

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the queue of changes waiting for the remote",
	}

	cmd.AddCommand(newQueueLsCmd())
	cmd.AddCommand(newQueueRetryCmd())

	return cmd
}

func newQueueLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List queued changes, oldest first",
		Long: `List queued changes in replay order. A change that failed is retried with
exponential backoff; after sync.max_retries failures it is marked failed and
is only retried after 'mediavault queue retry'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				changes, err := sess.Store.ListPending(cmd.Context())
				if err != nil {
					return err
				}

				items := queueItems(changes, cc.Cfg.Sync.MaxRetries, sess.Store.Now())

				if cc.Flags.JSON {
					return printJSON(cmd.OutOrStdout(), items)
				}

				printQueueTable(cmd.OutOrStdout(), items)

				return nil
			})
		},
	}
}

func newQueueRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Clear failure state so every queued change is retried next sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(sess *Session, cc *CLIContext) error {
				n, err := sess.Store.ResetFailures(cmd.Context())
				if err != nil {
					return err
				}

				cc.Statusf("Reset %d change(s); run 'mediavault sync' to retry now.\n", n)

				return nil
			})
		},
	}
}

// queueItem is one row of `queue ls`.
type queueItem struct {
	catalog.Change
	State string `json:"state"`
}

func queueItems(changes []catalog.Change, maxRetries int, now time.Time) []queueItem {
	items := make([]queueItem, len(changes))

	for i := range changes {
		c := &changes[i]
		state := queueStatePending

		switch {
		case c.PermanentlyFailed(maxRetries):
			state = queueStateFailed
		case c.Deferred(now):
			state = queueStateBackoff
		}

		items[i] = queueItem{Change: *c, State: state}
	}

	return items
}

func printQueueTable(w io.Writer, items []queueItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "Queue is empty.")
		return
	}

	headers := []string{"ENTITY", "OP", "QUEUED", "STATE", "RETRIES", "NEXT", "LAST ERROR"}
	rows := make([][]string, len(items))

	for i := range items {
		c := &items[i]

		next := "-"
		if c.State == queueStateBackoff {
			next = formatOptionalTime(c.NextAttemptAt)
		}

		rows[i] = []string{
			c.ID,
			string(c.Operation),
			formatTime(c.Timestamp),
			c.State,
			strconv.Itoa(c.RetryCount),
			next,
			truncate(c.LastError, queueErrorWidth),
		}
	}

	printTable(w, headers, rows)
}
