package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/qval/pkg/config"
	"github.com/wonny/qval/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:      "test",
		LogLevel: "error",
		HTTP:     config.HTTPConfig{Timeout: 5 * time.Second, MaxRetries: 3},
	}
}

func TestNew(t *testing.T) {
	client := New(testConfig(), logger.Nop())
	require.NotNil(t, client)

	assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
	assert.Equal(t, 3, client.retryConfig.MaxRetries)
	assert.True(t, client.retryConfig.Enabled)
	assert.Nil(t, client.limiter, "rate limit 0 means unlimited")

	cfg := testConfig()
	cfg.HTTP.RateLimit = 2
	cfg.HTTP.MaxRetries = 0
	limited := New(cfg, logger.Nop())
	assert.NotNil(t, limited.limiter)
	assert.False(t, limited.retryConfig.Enabled)
}

func TestWithRetryAndDisable(t *testing.T) {
	client := New(testConfig(), logger.Nop()).WithRetry(5, 2*time.Second)
	assert.Equal(t, 5, client.retryConfig.MaxRetries)
	assert.Equal(t, 2*time.Second, client.retryConfig.InitialDelay)

	client.DisableRetry()
	assert.False(t, client.retryConfig.Enabled)
}

func TestIsRemote(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"https://example.com/obs.csv", true},
		{"http://localhost:8080/obs.csv", true},
		{"data/obs.csv", false},
		{"/abs/obs.csv", false},
		{"ftp://example.com/obs.csv", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRemote(tt.path))
		})
	}
}

func TestOpenRemote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte("date,asset_return\n"))
	}))
	defer server.Close()

	rc, err := New(testConfig(), logger.Nop()).Open(context.Background(), server.URL+"/obs.csv")
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "date,asset_return\n", string(body))
}

func TestOpenLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.csv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	rc, err := New(testConfig(), logger.Nop()).Open(context.Background(), path)
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "x", string(body))
}

func TestOpenStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(testConfig(), logger.Nop()).Open(context.Background(), server.URL)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestRetryOn5xx(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			// 503 for the first two attempts
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(testConfig(), logger.Nop()).WithRetry(3, 10*time.Millisecond)

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRetryExhausted(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(testConfig(), logger.Nop()).WithRetry(2, time.Millisecond)

	_, err := client.Open(context.Background(), server.URL)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRetryStopsOnCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := New(testConfig(), logger.Nop()).WithRetry(10, time.Second)
	_, err := client.Get(ctx, server.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		statusCode int
		want       bool
	}{
		{200, false},
		{400, false},
		{404, false},
		{429, true}, // Too Many Requests
		{500, true},
		{502, true},
		{503, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.statusCode), func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.statusCode))
		})
	}
}
