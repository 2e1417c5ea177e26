package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/mediavault/internal/config"
	"github.com/tonimelisma/mediavault/internal/logging"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the persistent flags shared by every command.
type CLIFlags struct {
	ConfigPath string
	DBPath     string
	RemoteURL  string
	JSON       bool
	Verbose    bool
	Debug      bool
	Quiet      bool
}

// CLIContext is everything a command needs after the root pre-run: the
// parsed flags, the resolved config, and the logger built from both.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger

	// reload re-resolves the config with the same env and CLI overrides.
	reload    func() (*config.Resolved, error)
	logCloser io.Closer
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext stored by the root pre-run. A
// missing context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cc == nil {
		panic("mediavault: command run without CLI context")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:     "mediavault",
		Short:   "Offline-first media catalog",
		Long:    "A personal media catalog that works offline and syncs with a remote vault.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := loadCLIContext(cmd, flags)
			if err != nil {
				return err
			}

			cmd.SetContext(withCLIContext(cmd.Context(), cc))

			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return mustCLIContext(cmd.Context()).logCloser.Close()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.DBPath, "db", "", "catalog database path")
	pf.StringVar(&flags.RemoteURL, "remote-url", "", "remote vault base URL")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable info logging")
	pf.BoolVar(&flags.Debug, "debug", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newModeCmd())
	cmd.AddCommand(newMediaCmd())
	cmd.AddCommand(newActorCmd())
	cmd.AddCommand(newCollectionCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newQueueCmd())
	cmd.AddCommand(newConflictsCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadCLIContext resolves the effective configuration from the four-layer
// override chain and builds the logger.
func loadCLIContext(cmd *cobra.Command, flags CLIFlags) (*CLIContext, error) {
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	// Only pass path overrides the user explicitly set.
	if cmd.Flags().Changed("db") {
		cli.DBPath = &flags.DBPath
	}

	if cmd.Flags().Changed("remote-url") {
		cli.RemoteURL = &flags.RemoteURL
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, closer, err := buildLogger(&resolved.Logging, flags, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	logger.Debug("config resolved",
		slog.String("config_path", resolved.Path),
		slog.String("db_path", resolved.Catalog.DBPath),
	)

	reload := func() (*config.Resolved, error) {
		return config.Resolve(config.ReadEnvOverrides(), cli)
	}

	return &CLIContext{Flags: flags, Cfg: resolved, Logger: logger, reload: reload, logCloser: closer}, nil
}

// buildLogger creates the logger from the logging config and CLI flags.
// The config level is the baseline; --verbose, --debug, and --quiet
// override it because CLI flags always win.
func buildLogger(cfg *config.LoggingConfig, flags CLIFlags, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case flags.Debug:
		level = slog.LevelDebug
	case flags.Verbose:
		level = slog.LevelInfo
	case flags.Quiet:
		level = slog.LevelError
	}

	return logging.New(logging.Options{
		Level:         level,
		Format:        cfg.LogFormat,
		File:          cfg.LogFile,
		RetentionDays: cfg.LogRetentionDays,
		Stderr:        stderr,
	})
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
