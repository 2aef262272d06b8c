package genrenet

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/genrenet-go/internal/errors"
)

const (
	testEndpoint = "https://inference.example.com/models"
	testModel    = "dima806/music_genres_classification"
	testModelURL = testEndpoint + "/" + testModel
)

func newMockRemote(t *testing.T) (*httpmock.MockTransport, RemoteConfig) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	return transport, RemoteConfig{
		Endpoint:   testEndpoint,
		Model:      testModel,
		Token:      "hf_test",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		Transport:  transport,
		retryDelay: time.Millisecond,
	}
}

func writeClip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3 fake mp3"), 0o600))
	return path
}

func TestRemoteLoader_ProbeStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		wantErr  bool
		category errors.ErrorCategory
	}{
		{"available", http.StatusOK, false, ""},
		{"method not allowed counts as available", http.StatusMethodNotAllowed, false, ""},
		{"cold model counts as available", http.StatusServiceUnavailable, false, ""},
		{"not found", http.StatusNotFound, true, errors.CategoryModelLoad},
		{"bad token", http.StatusUnauthorized, true, errors.CategoryConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			transport, cfg := newMockRemote(t)
			transport.RegisterResponder(http.MethodGet, testModelURL,
				httpmock.NewStringResponder(tt.status, `{}`))

			c, err := NewRemoteLoader(cfg)(t.Context())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, tt.category))
				return
			}
			require.NoError(t, err)
			require.NoError(t, c.Close())
		})
	}
}

func TestRemoteLoader_InvalidSettings(t *testing.T) {
	t.Parallel()

	_, cfg := newMockRemote(t)
	cfg.Endpoint = "not a url"
	_, err := NewRemoteLoader(cfg)(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, cfg = newMockRemote(t)
	cfg.Model = ""
	_, err = NewRemoteLoader(cfg)(t.Context())
	require.Error(t, err)
}

func TestRemoteClassifier_Classify(t *testing.T) {
	t.Parallel()

	transport, cfg := newMockRemote(t)
	transport.RegisterResponder(http.MethodGet, testModelURL, httpmock.NewStringResponder(http.StatusOK, `{}`))
	transport.RegisterResponder(http.MethodPost, testModelURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer hf_test", req.Header.Get("Authorization"))
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

			var body remoteRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return nil, err
			}
			audio, err := base64.StdEncoding.DecodeString(body.Inputs)
			if err != nil {
				return nil, err
			}
			assert.Equal(t, "ID3 fake mp3", string(audio))
			assert.Equal(t, remoteTopK, body.Parameters.TopK)

			return httpmock.NewJsonResponse(http.StatusOK, []Prediction{
				{Label: "Hip Hop", Score: 0.6},
				{Label: "rock", Score: 0.4},
			})
		})

	c, err := NewRemoteLoader(cfg)(t.Context())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	got, err := c.Classify(t.Context(), writeClip(t))
	require.NoError(t, err)
	assert.Equal(t, []Prediction{{Label: "Hip Hop", Score: 0.6}, {Label: "rock", Score: 0.4}}, got)
}

func TestRemoteClassifier_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	transport, cfg := newMockRemote(t)
	transport.RegisterResponder(http.MethodGet, testModelURL, httpmock.NewStringResponder(http.StatusOK, `{}`))
	transport.RegisterResponder(http.MethodPost, testModelURL,
		httpmock.NewStringResponder(http.StatusServiceUnavailable, `{"error":"Model is currently loading","estimated_time":0.001}`).
			Then(httpmock.NewStringResponder(http.StatusOK, `[{"label":"jazz","score":1.0}]`)))

	c, err := NewRemoteLoader(cfg)(t.Context())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	got, err := c.Classify(t.Context(), writeClip(t))
	require.NoError(t, err)
	assert.Equal(t, []Prediction{{Label: "jazz", Score: 1.0}}, got)
	assert.Equal(t, 2, transport.GetCallCountInfo()["POST "+testModelURL])
}

func TestRemoteClassifier_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	transport, cfg := newMockRemote(t)
	transport.RegisterResponder(http.MethodGet, testModelURL, httpmock.NewStringResponder(http.StatusOK, `{}`))
	transport.RegisterResponder(http.MethodPost, testModelURL,
		httpmock.NewStringResponder(http.StatusBadGateway, `upstream down`))

	c, err := NewRemoteLoader(cfg)(t.Context())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Classify(t.Context(), writeClip(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, 1+cfg.MaxRetries, transport.GetCallCountInfo()["POST "+testModelURL])
}

func TestRemoteClassifier_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	transport, cfg := newMockRemote(t)
	transport.RegisterResponder(http.MethodGet, testModelURL, httpmock.NewStringResponder(http.StatusOK, `{}`))
	transport.RegisterResponder(http.MethodPost, testModelURL,
		httpmock.NewStringResponder(http.StatusBadRequest, `{"error":"Malformed soundfile"}`))

	c, err := NewRemoteLoader(cfg)(t.Context())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Classify(t.Context(), writeClip(t))
	require.Error(t, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["POST "+testModelURL])
}

func TestRemoteClassifier_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	transport, cfg := newMockRemote(t)
	cfg.MaxRetries = 0
	transport.RegisterResponder(http.MethodGet, testModelURL, httpmock.NewStringResponder(http.StatusOK, `{}`))
	transport.RegisterResponder(http.MethodPost, testModelURL,
		httpmock.NewStringResponder(http.StatusInternalServerError, `boom`))

	c, err := NewRemoteLoader(cfg)(t.Context())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	clip := writeClip(t)
	for range breakerFailureThreshold {
		_, err = c.Classify(t.Context(), clip)
		require.Error(t, err)
	}

	_, err = c.Classify(t.Context(), clip)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, breakerFailureThreshold, transport.GetCallCountInfo()["POST "+testModelURL])
}

func TestRemoteClassifier_ErrorBodyOnSuccessStatus(t *testing.T) {
	t.Parallel()

	transport, cfg := newMockRemote(t)
	transport.RegisterResponder(http.MethodGet, testModelURL, httpmock.NewStringResponder(http.StatusOK, `{}`))
	transport.RegisterResponder(http.MethodPost, testModelURL,
		httpmock.NewStringResponder(http.StatusOK, `{"error":"audio too short"}`))

	c, err := NewRemoteLoader(cfg)(t.Context())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Classify(t.Context(), writeClip(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio too short")
}
