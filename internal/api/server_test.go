package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/genrenet-go/internal/conf"
	"github.com/tphakala/genrenet-go/internal/genrenet"
	"github.com/tphakala/genrenet-go/internal/observability"
	"github.com/tphakala/genrenet-go/internal/pipeline"
	"github.com/tphakala/genrenet-go/internal/staging"
)

type fakeClassifier struct {
	predictions []genrenet.Prediction
	err         error
	calls       atomic.Int32
}

func (f *fakeClassifier) Classify(_ context.Context, path string) ([]genrenet.Prediction, error) {
	f.calls.Add(1)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("staged file missing: %w", err)
	}
	return f.predictions, f.err
}

type fixedState genrenet.State

func (s fixedState) State() genrenet.State { return genrenet.State(s) }

func genrePredictions() []genrenet.Prediction {
	return []genrenet.Prediction{
		{Label: "Pop", Score: 0.7},
		{Label: "hip-hop", Score: 0.2},
		{Label: "Rock_and_Roll", Score: 0.1},
	}
}

// newTestServer builds a server around a real pipeline staging into a temp dir.
func newTestServer(t *testing.T, cls *fakeClassifier, opts ...ServerOption) (*Server, string) {
	t.Helper()

	dir := t.TempDir()
	area, err := staging.NewArea(dir)
	require.NoError(t, err)

	s, err := New(&conf.Settings{Version: "test"}, pipeline.New(cls, area), fixedState(genrenet.StateReady), opts...)
	require.NoError(t, err)
	return s, dir
}

func multipartBody(t *testing.T, field, filename string, content []byte) (body *bytes.Buffer, contentType string) {
	t.Helper()

	body = &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if field != "" {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.WriteField("comment", "test upload"))
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func postPredict(t *testing.T, s *Server, field, filename string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, field, filename, []byte("RIFF fake audio"))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	return serve(s, req)
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Detail
}

func assertStagingEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staged files must be removed")
}

func TestPredict_Success(t *testing.T) {
	t.Parallel()

	cls := &fakeClassifier{predictions: genrePredictions()}
	s, dir := newTestServer(t, cls)

	rec := postPredict(t, s, UploadField, "song.MP3")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got pipeline.GenrePrediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "pop", got.Genre)
	assert.Equal(t, map[string]float64{"pop": 0.7, "hop": 0.2, "roll": 0.1}, got.Probabilities)
	assert.Equal(t, int32(1), cls.calls.Load())
	assertStagingEmpty(t, dir)
}

func TestPredict_AcceptsSingleOtherField(t *testing.T) {
	t.Parallel()

	cls := &fakeClassifier{predictions: genrePredictions()}
	s, _ := newTestServer(t, cls)

	rec := postPredict(t, s, "file", "track.wav")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int32(1), cls.calls.Load())
}

func TestPredict_RejectsBadExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filename string
	}{
		{"text file", "notes.txt"},
		{"no extension", "audio"},
		{"extension in middle", "song.mp3.exe"},
		{"flac not supported", "song.flac"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cls := &fakeClassifier{predictions: genrePredictions()}
			s, dir := newTestServer(t, cls)

			rec := postPredict(t, s, UploadField, tt.filename)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, pipeline.InvalidExtensionMessage, decodeDetail(t, rec))
			assert.Zero(t, cls.calls.Load(), "classifier must not run")
			assertStagingEmpty(t, dir)
		})
	}
}

func TestPredict_MissingFile(t *testing.T) {
	t.Parallel()

	cls := &fakeClassifier{predictions: genrePredictions()}
	s, _ := newTestServer(t, cls)

	t.Run("form without file", func(t *testing.T) {
		rec := postPredict(t, s, "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, missingFileDetail, decodeDetail(t, rec))
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"audio":"x"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := serve(s, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, missingFileDetail, decodeDetail(t, rec))
	})

	assert.Zero(t, cls.calls.Load())
}

func TestPredict_ServerError(t *testing.T) {
	t.Parallel()

	cls := &fakeClassifier{err: fmt.Errorf("model exploded")}
	s, dir := newTestServer(t, cls)

	rec := postPredict(t, s, UploadField, "song.m4a")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Server Error: model exploded", decodeDetail(t, rec))
	assertStagingEmpty(t, dir)
}

func TestPredict_BodyLimit(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.BodyLimit = "1K"
	cls := &fakeClassifier{predictions: genrePredictions()}
	s, _ := newTestServer(t, cls, WithConfig(cfg))

	body, contentType := multipartBody(t, UploadField, "big.wav", bytes.Repeat([]byte{0x7f}, 8*1024))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := serve(s, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.NotEmpty(t, decodeDetail(t, rec))
	assert.Zero(t, cls.calls.Load())
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeClassifier{})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var got HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "healthy", got.Status)
	assert.Equal(t, "ready", got.ModelState)
	assert.Equal(t, "test", got.Version)
	assert.GreaterOrEqual(t, got.MemoryUsedPercent, 0.0)
	_, err := time.Parse(time.RFC3339, got.Timestamp)
	assert.NoError(t, err)
}

func TestHealth_FailedModelStillOK(t *testing.T) {
	t.Parallel()

	area, err := staging.NewArea(t.TempDir())
	require.NoError(t, err)
	s, err := New(nil, pipeline.New(&fakeClassifier{}, area), fixedState(genrenet.StateFailed))
	require.NoError(t, err)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"model_state":"failed"`)
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	m, err := observability.NewMetrics()
	require.NoError(t, err)
	s, _ := newTestServer(t, &fakeClassifier{}, WithMetrics(m))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `genrenet_http_requests_total{code="200",method="GET",route="/health"} 1`)
}

func TestMetricsRoute_DisabledWithoutMetrics(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeClassifier{})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", decodeDetail(t, rec))
}

func TestCORS(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeClassifier{})

	t.Run("preflight reflects origin and headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/predict", http.NoBody)
		req.Header.Set(echo.HeaderOrigin, "http://localhost:5173")
		req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
		req.Header.Set(echo.HeaderAccessControlRequestHeaders, "X-Custom-Header")
		rec := serve(s, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://localhost:5173", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
		assert.Equal(t, "true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))
		assert.Equal(t, "X-Custom-Header", rec.Header().Get(echo.HeaderAccessControlAllowHeaders))
		assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods), http.MethodPost)
	})

	t.Run("simple request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
		req.Header.Set(echo.HeaderOrigin, "https://example.org")
		rec := serve(s, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://example.org", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	})
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeClassifier{})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	req.Header.Set(echo.HeaderXRequestID, "client-supplied-id")
	rec = serve(s, req)
	assert.Equal(t, "client-supplied-id", rec.Header().Get(echo.HeaderXRequestID))
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RateLimit = 1
	s, _ := newTestServer(t, &fakeClassifier{}, WithConfig(cfg))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, decodeDetail(t, rec))
}

func healthFrom(s *Server, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	req.RemoteAddr = "192.0.2.1:40000"
	if forwardedFor != "" {
		req.Header.Set(echo.HeaderXForwardedFor, forwardedFor)
	}
	return serve(s, req).Code
}

func TestRateLimit_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RateLimit = 1
	s, _ := newTestServer(t, &fakeClassifier{}, WithConfig(cfg))

	assert.Equal(t, http.StatusOK, healthFrom(s, "203.0.113.5"))
	assert.Equal(t, http.StatusTooManyRequests, healthFrom(s, "203.0.113.6"),
		"a rotated X-Forwarded-For must not open a new bucket")
}

func TestRateLimit_TrustedProxyForwardsClientIP(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RateLimit = 1
	cfg.TrustedProxies = []string{"192.0.2.0/24"}
	s, _ := newTestServer(t, &fakeClassifier{}, WithConfig(cfg))

	assert.Equal(t, http.StatusOK, healthFrom(s, "203.0.113.5"))
	assert.Equal(t, http.StatusOK, healthFrom(s, "203.0.113.6"))
	assert.Equal(t, http.StatusTooManyRequests, healthFrom(s, "203.0.113.5"))
}

func TestNew_RejectsBadTrustedProxy(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.TrustedProxies = []string{"proxy.local"}
	_, err := New(&conf.Settings{}, pipeline.New(&fakeClassifier{}, nil), nil, WithConfig(cfg))
	assert.ErrorContains(t, err, "trusted proxies")
}

func TestNew_RequiresPredictor(t *testing.T) {
	t.Parallel()

	_, err := New(&conf.Settings{}, nil, nil)
	assert.Error(t, err)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = "0"
	s, _ := newTestServer(t, &fakeClassifier{}, WithConfig(cfg))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return s.Echo().ListenerAddr() != nil
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + s.Echo().ListenerAddr().String() + "/health")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
