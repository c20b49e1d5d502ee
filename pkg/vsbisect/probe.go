package vsbisect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ProbeConfig controls how a freshly launched server is polled for readiness.
type ProbeConfig struct {
	Retries int // How many polls before the server is considered to have failed

	Backoff time.Duration // How long to wait between polls

	BackoffIncrement time.Duration // By how much the backoff grows after each failed poll
	MaxBackoff       time.Duration // The maximum duration the backoff may reach after incrementing
}

func defaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		Retries:          30,
		Backoff:          500 * time.Millisecond,
		BackoffIncrement: 250 * time.Millisecond,
		MaxBackoff:       2 * time.Second,
	}
}

// awaitHTTP polls rawURL until it answers or the retries are exhausted. Any
// response below 500 counts as ready.
func awaitHTTP(ctx context.Context, rawURL string, cfg ProbeConfig) error {
	backoff := cfg.Backoff
	var lastErr error
	for i := 0; i < cfg.Retries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		res, err := http.DefaultClient.Do(req)
		if err == nil {
			res.Body.Close()
			if res.StatusCode < http.StatusInternalServerError {
				return nil
			}
			lastErr = fmt.Errorf("%s answered status %s", rawURL, res.Status)
		} else {
			lastErr = err
		}

		if i != cfg.Retries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff += cfg.BackoffIncrement
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	}
	return errors.Join(fmt.Errorf("server at %s not ready after %d attempts", rawURL, cfg.Retries), lastErr)
}
