package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer creates a test HTTP server and registers cleanup.
func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, cfg *Config) *Client {
	t.Helper()
	client := New(cfg)
	t.Cleanup(client.Close)
	return client
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil config uses defaults", func(t *testing.T) {
		t.Parallel()
		client := New(nil)
		assert.Equal(t, DefaultTimeout, client.defaultTimeout)
		assert.Equal(t, defaultUserAgent, client.userAgent)
		assert.Empty(t, client.token)
	})

	t.Run("zero values use defaults", func(t *testing.T) {
		t.Parallel()
		client := New(&Config{Token: "abc"})
		assert.Equal(t, DefaultTimeout, client.defaultTimeout)
		assert.Equal(t, defaultUserAgent, client.userAgent)
		assert.Equal(t, "abc", client.token)
	})

	t.Run("config is not mutated", func(t *testing.T) {
		t.Parallel()
		cfg := Config{}
		_ = New(&cfg)
		assert.Zero(t, cfg.DefaultTimeout)
		assert.Empty(t, cfg.UserAgent)
	})
}

func TestDo_InjectsHeaders(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "TestAgent/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("ok"))
	})
	client := newTestClient(t, &Config{UserAgent: "TestAgent/1.0", Token: "secret"})

	resp, err := client.Get(t.Context(), server.URL)
	require.NoError(t, err)
	body, err := ReadBody(resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestDo_ExplicitAuthorizationWins(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer other", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})
	client := newTestClient(t, &Config{Token: "secret"})

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer other")

	resp, err := client.Do(t.Context(), req)
	require.NoError(t, err)
	_, err = ReadBody(resp)
	require.NoError(t, err)
}

func TestDo_DefaultTimeout(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	client := newTestClient(t, &Config{DefaultTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := client.Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDo_NilRequest(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, nil)
	_, err := client.Do(t.Context(), nil)
	require.Error(t, err)
}

func TestPost_SendsBody(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "audio/wav", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		assert.Equal(t, "RIFF", string(data))
		w.WriteHeader(http.StatusOK)
	})
	client := newTestClient(t, nil)

	resp, err := client.Post(t.Context(), server.URL, "audio/wav", []byte("RIFF"))
	require.NoError(t, err)
	_, err = ReadBody(resp)
	require.NoError(t, err)
}

func TestReadBody_StatusError(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(strings.Repeat("x", 2*maxErrorBody)))
	})
	client := newTestClient(t, nil)

	resp, err := client.Get(t.Context(), server.URL)
	require.NoError(t, err)

	data, err := ReadBody(resp)
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Len(t, statusErr.Body, maxErrorBody)
	assert.Len(t, data, 2*maxErrorBody)
}

func TestHooks(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	client := newTestClient(t, nil)

	var before, after atomic.Int32
	client.SetBeforeRequestHook(func(*http.Request) { before.Add(1) })
	client.SetAfterResponseHook(func(_ *http.Request, resp *http.Response, err error) {
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		after.Add(1)
	})

	resp, err := client.Get(t.Context(), server.URL)
	require.NoError(t, err)
	_, _ = ReadBody(resp)

	assert.Equal(t, int32(1), before.Load())
	assert.Equal(t, int32(1), after.Load())
}
