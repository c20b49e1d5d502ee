package vsbisect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastProbeConfig(retries int) ProbeConfig {
	return ProbeConfig{
		Retries:          retries,
		Backoff:          time.Millisecond,
		BackoffIncrement: time.Millisecond,
		MaxBackoff:       5 * time.Millisecond,
	}
}

func TestAwaitHTTP(t *testing.T) {
	t.Run("Ready on the first poll", func(t *testing.T) {
		hits := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
		defer server.Close()

		assert.Nil(t, awaitHTTP(context.Background(), server.URL, fastProbeConfig(3)), "Probe failed against a healthy server")
		assert.Equal(t, 1, hits, "Probe kept polling a ready server")
	})

	t.Run("Retries until the server recovers", func(t *testing.T) {
		hits := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			if hits < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		}))
		defer server.Close()

		assert.Nil(t, awaitHTTP(context.Background(), server.URL, fastProbeConfig(5)), "Probe gave up on a recovering server")
		assert.Equal(t, 3, hits, "Wrong number of polls")
	})

	t.Run("Client errors count as ready", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		assert.Nil(t, awaitHTTP(context.Background(), server.URL, fastProbeConfig(2)), "Routing or auth response treated as not ready")
	})

	t.Run("Gives up after the configured retries", func(t *testing.T) {
		hits := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		err := awaitHTTP(context.Background(), server.URL, fastProbeConfig(3))
		assert.ErrorContains(t, err, "not ready after 3 attempts", "Wrong failure message")
		assert.Equal(t, 3, hits, "Wrong number of polls")
	})

	t.Run("Stops when the context is cancelled", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := awaitHTTP(ctx, server.URL, fastProbeConfig(5))
		assert.ErrorIs(t, err, context.Canceled, "Cancellation not surfaced")
	})
}
