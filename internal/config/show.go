package config

import (
	"fmt"
	"io"
)

// redacted replaces secrets in rendered output.
const redacted = "********"

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command, giving
// users visibility into the effective values after all four override layers
// (defaults -> file -> env -> CLI) have been applied. The API token is
// never printed.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", r.Path)

	if r.Mode != "" {
		ew.printf("# mode pinned by %s = %q\n\n", EnvMode, r.Mode)
	}

	renderCatalogSection(ew, &r.Catalog)
	renderRemoteSection(ew, &r.Remote)
	renderSyncSection(ew, &r.Sync)
	renderLoggingSection(ew, &r.Logging)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderCatalogSection(ew *errWriter, c *CatalogConfig) {
	ew.printf("[catalog]\n")
	ew.printf("  db_path = %q\n", c.DBPath)
	ew.printf("\n")
}

func renderRemoteSection(ew *errWriter, r *RemoteConfig) {
	ew.printf("[remote]\n")
	ew.printf("  url             = %q\n", r.URL)

	if r.APIToken != "" {
		ew.printf("  api_token       = %q\n", redacted)
	}

	ew.printf("  probe_timeout   = %q\n", r.ProbeTimeout)
	ew.printf("  request_timeout = %q\n", r.RequestTimeout)
	ew.printf("\n")
}

func renderSyncSection(ew *errWriter, s *SyncConfig) {
	ew.printf("[sync]\n")
	ew.printf("  interval      = %q\n", s.Interval)
	ew.printf("  websocket     = %t\n", s.Websocket)
	ew.printf("  max_retries   = %d\n", s.MaxRetries)
	ew.printf("  retry_initial = %q\n", s.RetryInitial)
	ew.printf("  retry_max     = %q\n", s.RetryMax)
	ew.printf("  retry_jitter  = %g\n", s.RetryJitter)
	ew.printf("  page_size     = %d\n", s.PageSize)
	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level          = %q\n", l.LogLevel)

	if l.LogFile != "" {
		ew.printf("  log_file           = %q\n", l.LogFile)
	}

	ew.printf("  log_format         = %q\n", l.LogFormat)
	ew.printf("  log_retention_days = %d\n", l.LogRetentionDays)
}
