package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/mediavault/internal/mode"
)

func newModeCmd() *cobra.Command {
	var remoteURL string

	cmd := &cobra.Command{
		Use:   "mode [standalone|connected]",
		Short: "Show or set the operating mode",
		Long: `Without an argument, print the effective mode, the persisted preference,
and the remote URL. The effective mode is settled first: a connected
preference only takes effect when the remote answers its health check.

With an argument, persist the new preference and switch to it immediately.
Switching to connected requires a remote URL, given with --url or already
persisted. An unreachable remote is reported but does not block the switch.

Examples:
  mediavault mode
  mediavault mode connected --url https://vault.example
  mediavault mode standalone`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(mode.Standalone), string(mode.Connected)},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runModeShow(cmd)
			}

			return runModeSet(cmd, args[0], remoteURL)
		},
	}

	cmd.Flags().StringVar(&remoteURL, "url", "", "remote vault base URL to persist")

	cmd.AddCommand(newModeProbeCmd())

	return cmd
}

func newModeProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check remote reachability and re-select the mode",
		Long: `Probe the remote health endpoint and apply the persisted preference,
exactly as happens on startup. Prints the resulting effective mode.`,
		Args: cobra.NoArgs,
		RunE: runModeProbe,
	}
}

func runModeShow(cmd *cobra.Command) error {
	cc := mustCLIContext(cmd.Context())

	sess, err := NewSession(cmd.Context(), cc, sessionOpts{})
	if err != nil {
		return err
	}
	defer sess.Close()

	return printModeState(cmd.OutOrStdout(), sess.Modes.State(), cc.Flags.JSON)
}

func runModeSet(cmd *cobra.Command, arg, remoteURL string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	target, err := mode.ParseMode(arg)
	if err != nil {
		return err
	}

	sess, err := NewSession(ctx, cc, sessionOpts{skipAutoSelect: true})
	if err != nil {
		return err
	}
	defer sess.Close()

	if remoteURL != "" {
		if err := sess.Modes.SetRemoteURL(ctx, remoteURL); err != nil {
			return err
		}
	}

	if target == mode.Connected {
		st := sess.Modes.State()
		if st.RemoteURL != "" && !sess.Modes.CheckAvailability(ctx, st.RemoteURL, cc.Cfg.Remote.ProbeTimeoutDuration()) {
			cc.Statusf("Warning: %s is not reachable; changes will queue until it is.\n", st.RemoteURL)
		}
	}

	if err := sess.Modes.SetMode(ctx, target); err != nil {
		if errors.Is(err, mode.ErrNoRemoteURL) {
			return errNoRemote
		}

		return err
	}

	cc.Statusf("Mode set to %s\n", target)

	return nil
}

func runModeProbe(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	sess, err := NewSession(ctx, cc, sessionOpts{skipAutoSelect: true})
	if err != nil {
		return err
	}
	defer sess.Close()

	st := sess.Modes.State()
	reachable := sess.Modes.CheckAvailability(ctx, st.RemoteURL, cc.Cfg.Remote.ProbeTimeoutDuration())
	sess.Modes.AutoSelect(ctx)

	w := cmd.OutOrStdout()

	if cc.Flags.JSON {
		return printJSON(w, modeProbeJSON{State: sess.Modes.State(), Reachable: reachable})
	}

	if st.RemoteURL == "" {
		fmt.Fprintln(w, "Remote:    (not configured)")
	} else {
		fmt.Fprintf(w, "Remote:    %s (reachable: %s)\n", st.RemoteURL, yesNo(reachable))
	}

	fmt.Fprintf(w, "Mode:      %s\n", sess.Modes.Current())

	return nil
}

type modeProbeJSON struct {
	mode.State
	Reachable bool `json:"reachable"`
}

func printModeState(w io.Writer, st mode.State, asJSON bool) error {
	if asJSON {
		return printJSON(w, st)
	}

	remoteURL := st.RemoteURL
	if remoteURL == "" {
		remoteURL = "(not configured)"
	}

	fmt.Fprintf(w, "Mode:      %s\n", st.Mode)
	fmt.Fprintf(w, "Preferred: %s\n", st.Preferred)
	fmt.Fprintf(w, "Remote:    %s\n", remoteURL)

	return nil
}
