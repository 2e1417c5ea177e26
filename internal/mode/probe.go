package mode

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// HealthPath is probed relative to the remote base URL.
const HealthPath = "/api/health"

// HTTPProber probes GET {baseURL}/api/health. Only a 2xx answer counts as
// reachable.
type HTTPProber struct {
	Client *http.Client
}

// NewHTTPProber returns a prober using client, or http.DefaultClient when
// client is nil.
func NewHTTPProber(client *http.Client) *HTTPProber {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPProber{Client: client}
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context, baseURL string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+HealthPath, http.NoBody)
	if err != nil {
		return false
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
