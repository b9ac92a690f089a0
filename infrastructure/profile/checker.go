// Package profile verifies that extracted usernames correspond to live
// remote profiles. The check is advisory: it annotates reporting during
// the sequential merge phase and never feeds back into extraction.
package profile

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/beyourahi/extract-usernames/internal/ports"
)

// DefaultBaseURL is the profile URL prefix probed by the checker.
const DefaultBaseURL = "https://www.instagram.com/"

// CheckerConfig defines the configuration parameters for the Checker.
type CheckerConfig struct {
	// BaseURL is the profile URL prefix; the username is appended.
	BaseURL string
	// Timeout bounds each probe.
	Timeout time.Duration
	// RequestsPerSecond paces probes against the remote service.
	RequestsPerSecond float64
	// Burst allows short spikes above the sustained rate.
	Burst int
	// MaxRetries bounds retries on transport faults.
	MaxRetries int
}

// DefaultCheckerConfig returns a CheckerConfig with conservative
// defaults. One request per second keeps the probe traffic well under
// anti-scraping thresholds.
func DefaultCheckerConfig() CheckerConfig {
	return CheckerConfig{
		BaseURL:           DefaultBaseURL,
		Timeout:           10 * time.Second,
		RequestsPerSecond: 1,
		Burst:             1,
		MaxRetries:        2,
	}
}

// Checker probes profile existence with HEAD requests.
//
// The outcome is conclusive only when the remote answered decisively:
// 2xx means the profile exists, 404 means it does not. Anything else,
// including transport faults, rate-limit responses, and interstitial
// redirects, is inconclusive and must not be read as absence.
type Checker struct {
	config  CheckerConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewChecker creates a Checker with the specified configuration.
func NewChecker(config CheckerConfig) (*Checker, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if config.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("requests per second must be positive")
	}
	if config.Burst < 1 {
		config.Burst = 1
	}

	return &Checker{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
			// A redirect to a login or challenge page is not an answer
			// about the profile; keep the original status visible.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
	}, nil
}

// Exists probes the profile URL for the given username. The second
// return value is false when the check could not be completed, in which
// case the first value is meaningless.
func (c *Checker) Exists(ctx context.Context, username string) (bool, bool) {
	if username == "" {
		return false, false
	}

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, false
		}

		exists, conclusive, retryable := c.probe(ctx, username)
		if conclusive {
			return exists, true
		}
		if !retryable || ctx.Err() != nil {
			break
		}
	}

	return false, false
}

func (c *Checker) probe(ctx context.Context, username string) (exists, conclusive, retryable bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.config.BaseURL+username, nil)
	if err != nil {
		return false, false, false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, false, true
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, true, false
	case resp.StatusCode == http.StatusNotFound:
		return false, true, false
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return false, false, true
	default:
		return false, false, false
	}
}

// Compile-time verification that Checker implements ExistenceChecker.
var _ ports.ExistenceChecker = (*Checker)(nil)
