package tester

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oriys/pairtester/internal/config"
)

// ConfigRefresher reloads cfg.ConfigLocation, satisfying
// internal/recorder.ConfigRefresher. When ConfigLocation is a URL it is
// fetched over HTTP with a fixed-retry backoff, grounded on
// original_source/utilities.py's fetchRemoteConfig; otherwise it is
// treated as a local file path and reloaded via config.LoadFromFile,
// grounded on refreshConfig's "no remote - from local" fallback.
type ConfigRefresher struct {
	location string
	retries  int
	timeout  time.Duration
	client   *http.Client
}

// NewConfigRefresher builds a ConfigRefresher from cfg's configlocation
// and httpretries settings.
func NewConfigRefresher(cfg *config.Config) *ConfigRefresher {
	retries := cfg.HTTPRetries.Retries
	if retries <= 0 {
		retries = 3
	}
	timeout := cfg.HTTPRetries.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ConfigRefresher{
		location: cfg.ConfigLocation,
		retries:  retries,
		timeout:  timeout,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

// Refresh implements internal/recorder.ConfigRefresher.
func (r *ConfigRefresher) Refresh(ctx context.Context) (*config.Config, error) {
	if r.location == "" {
		return nil, fmt.Errorf("tester: config refresh requested with no configlocation set")
	}
	if !isRemoteLocation(r.location) {
		return config.LoadFromFile(r.location)
	}

	data, err := r.fetchRemote(ctx)
	if err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("tester: parse remote config from %s: %w", r.location, err)
	}
	return cfg, nil
}

func isRemoteLocation(location string) bool {
	return len(location) > 7 && (location[:7] == "http://" || (len(location) > 8 && location[:8] == "https://"))
}

// fetchRemote retries up to r.retries times with a fixed delay between
// attempts, matching fetchRemoteConfig's retry loop (but context-aware
// rather than a blocking time.Sleep).
func (r *ConfigRefresher) fetchRemote(ctx context.Context) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= r.retries; attempt++ {
		data, err := r.tryFetch(ctx)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if attempt == r.retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.timeout):
		}
	}
	return nil, fmt.Errorf("tester: fetch remote config from %s after %d attempts: %w", r.location, r.retries, lastErr)
}

func (r *ConfigRefresher) tryFetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
