package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/mediavault/internal/config"
	"github.com/tonimelisma/mediavault/internal/mode"
	"github.com/tonimelisma/mediavault/internal/remote"
	"github.com/tonimelisma/mediavault/internal/repo"
	"github.com/tonimelisma/mediavault/internal/store"
	"github.com/tonimelisma/mediavault/internal/sync"
)

const dataDirPermissions = 0o755

// errNoRemote is returned by commands that need the remote vault when no
// URL is configured or persisted.
var errNoRemote = errors.New("no remote URL configured; set [remote] url or run 'mediavault mode connected --url URL'")

// Session holds the open catalog for one command: the store, the mode
// manager, the remote client (nil without a URL), and the repositories.
type Session struct {
	Store  *store.Store
	Modes  *mode.Manager
	Remote *remote.Client
	Repos  *repo.Repositories

	cfg    *config.Resolved
	logger *slog.Logger
	engine *sync.Engine
}

// sessionOpts controls how NewSession settles the effective mode.
type sessionOpts struct {
	// skipAutoSelect leaves the mode Standalone instead of probing the
	// remote. Used by commands that set the mode themselves.
	skipAutoSelect bool
}

// NewSession opens the catalog database and settles the effective mode.
// A configured remote URL replaces the persisted one. MEDIAVAULT_MODE pins
// the preference; otherwise the persisted preference is auto-selected.
func NewSession(ctx context.Context, cc *CLIContext, opts sessionOpts) (*Session, error) {
	cfg := cc.Cfg
	logger := cc.Logger

	if err := os.MkdirAll(filepath.Dir(cfg.Catalog.DBPath), dataDirPermissions); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	s, err := store.Open(ctx, cfg.Catalog.DBPath, logger)
	if err != nil {
		return nil, err
	}

	sess := &Session{Store: s, cfg: cfg, logger: logger}

	if err := sess.initModes(ctx, opts); err != nil {
		s.Close()
		return nil, err
	}

	if url := sess.Modes.State().RemoteURL; url != "" {
		sess.Remote = newRemoteClient(url, &cfg.Remote, logger)
	}

	// A nil *remote.Client must not reach repo.New as a non-nil interface.
	if sess.Remote != nil {
		sess.Repos = repo.New(s, sess.Remote, sess.Modes, logger)
	} else {
		sess.Repos = repo.New(s, nil, sess.Modes, logger)
	}

	return sess, nil
}

func (s *Session) initModes(ctx context.Context, opts sessionOpts) error {
	cfg := s.cfg

	modes, err := mode.New(ctx, s.Store, mode.NewHTTPProber(nil), s.logger,
		mode.WithProbeTimeout(cfg.Remote.ProbeTimeoutDuration()))
	if err != nil {
		return err
	}

	s.Modes = modes

	if cfg.Remote.URL != "" && cfg.Remote.URL != modes.State().RemoteURL {
		if err := modes.SetRemoteURL(ctx, cfg.Remote.URL); err != nil {
			return err
		}
	}

	if cfg.Mode != "" {
		pinned, err := mode.ParseMode(cfg.Mode)
		if err != nil {
			return err
		}

		return modes.SetMode(ctx, pinned)
	}

	if !opts.skipAutoSelect {
		modes.AutoSelect(ctx)
	}

	return nil
}

// newRemoteClient builds the remote API client for baseURL.
func newRemoteClient(baseURL string, cfg *config.RemoteConfig, logger *slog.Logger) *remote.Client {
	httpClient := &http.Client{Timeout: cfg.RequestTimeoutDuration()}

	return remote.NewClient(baseURL, httpClient, remote.StaticToken(cfg.APIToken), logger)
}

// Engine returns the sync engine, building it on first use. It fails when
// no remote is configured.
func (s *Session) Engine() (*sync.Engine, error) {
	if s.engine != nil {
		return s.engine, nil
	}

	if s.Remote == nil {
		return nil, errNoRemote
	}

	e, err := sync.NewEngine(sync.EngineConfig{
		Store:    s.Store,
		Remote:   s.Remote,
		Modes:    s.Modes,
		Logger:   s.logger,
		Retry:    retryConfig(&s.cfg.Sync),
		PageSize: s.cfg.Sync.PageSize,
	})
	if err != nil {
		return nil, err
	}

	s.engine = e

	return e, nil
}

func retryConfig(cfg *config.SyncConfig) sync.RetryConfig {
	return sync.RetryConfig{
		MaxRetries: cfg.MaxRetries,
		Initial:    cfg.RetryInitialDuration(),
		Max:        cfg.RetryMaxDuration(),
		Jitter:     cfg.RetryJitter,
	}
}

// Close releases the engine, the repositories, and the store.
func (s *Session) Close() error {
	if s.engine != nil {
		s.engine.Close()
	}

	s.Repos.Close()

	return s.Store.Close()
}

// withSession opens a session with auto-selected mode for the duration of
// fn.
func withSession(cmd *cobra.Command, fn func(sess *Session, cc *CLIContext) error) error {
	cc := mustCLIContext(cmd.Context())

	sess, err := NewSession(cmd.Context(), cc, sessionOpts{})
	if err != nil {
		return err
	}
	defer sess.Close()

	return fn(sess, cc)
}
