package genrenet

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tphakala/genrenet-go/internal/errors"
	"github.com/tphakala/genrenet-go/internal/httpclient"
	"github.com/tphakala/genrenet-go/internal/logger"
	"github.com/tphakala/genrenet-go/internal/observability/metrics"
)

const (
	// remoteTopK asks for every class; the inference API clamps it to the
	// model's label count.
	remoteTopK = 1000

	defaultRemoteRetryDelay = time.Second
	maxRemoteRetryDelay     = 30 * time.Second

	breakerFailureThreshold = 5
	breakerOpenTimeout      = 30 * time.Second
)

// RemoteConfig configures the hosted inference API backend.
type RemoteConfig struct {
	Endpoint   string // base URL, the model name is appended
	Model      string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	Metrics    *metrics.GenreNetMetrics

	// Transport overrides the HTTP transport, used by tests.
	Transport http.RoundTripper

	retryDelay time.Duration
}

type remoteClassifier struct {
	client     *httpclient.Client
	url        string
	model      string
	maxRetries int
	retryDelay time.Duration
	breaker    *gobreaker.CircuitBreaker[[]Prediction]
	metrics    *metrics.GenreNetMetrics
}

type remoteRequest struct {
	Inputs     string           `json:"inputs"`
	Parameters remoteParameters `json:"parameters"`
}

type remoteParameters struct {
	TopK int `json:"top_k"`
}

type remoteErrorBody struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

// NewRemoteLoader returns a Loader for the hosted inference API. Loading
// validates the settings and probes the model endpoint.
func NewRemoteLoader(cfg RemoteConfig) Loader {
	return func(ctx context.Context) (Classifier, error) {
		return loadRemote(ctx, &cfg)
	}
}

func loadRemote(ctx context.Context, cfg *RemoteConfig) (*remoteClassifier, error) {
	if cfg.Model == "" {
		return nil, errors.Newf("remote model name is empty").
			Component(componentGenreNet).
			Category(errors.CategoryConfiguration).
			Build()
	}
	base, err := url.Parse(cfg.Endpoint)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf("invalid remote endpoint %q", cfg.Endpoint).
			Component(componentGenreNet).
			Category(errors.CategoryConfiguration).
			Build()
	}

	retryDelay := cfg.retryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRemoteRetryDelay
	}

	c := &remoteClassifier{
		client: httpclient.New(&httpclient.Config{
			DefaultTimeout: cfg.Timeout,
			Token:          cfg.Token,
			Transport:      cfg.Transport,
		}),
		url:        base.JoinPath(cfg.Model).String(),
		model:      cfg.Model,
		maxRetries: max(0, cfg.MaxRetries),
		retryDelay: retryDelay,
		metrics:    cfg.Metrics,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]Prediction](gobreaker.Settings{
		Name:        "remote-inference",
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// client errors say nothing about the health of the API
			return err == nil || !isRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			GetLogger().Warn("circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})

	if err := c.probe(ctx); err != nil {
		c.client.Close()
		return nil, err
	}

	GetLogger().Info("remote classifier ready",
		logger.String("model", cfg.Model),
		logger.String("endpoint", base.Redacted()))
	return c, nil
}

// probe checks that the model exists and the token is accepted. Any response
// other than not-found or unauthorized counts as available, since a cold
// model answers 503 until it has been loaded.
func (c *remoteClassifier) probe(ctx context.Context) error {
	start := time.Now()
	resp, err := c.client.Get(ctx, c.url)
	if err != nil {
		c.metrics.RecordRemoteRequest(metrics.StatusError, time.Since(start))
		return errors.New(fmt.Errorf("remote model probe failed: %w", err)).
			Component(componentGenreNet).
			Category(errors.CategoryNetwork).
			Context("model", c.model).
			Build()
	}
	c.metrics.RecordRemoteRequest(strconv.Itoa(resp.StatusCode), time.Since(start))
	_, _ = httpclient.ReadBody(resp)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return errors.Newf("remote model %s not found", c.model).
			Component(componentGenreNet).
			Category(errors.CategoryModelLoad).
			Context("model", c.model).
			Build()
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Newf("remote inference API rejected credentials (status %d)", resp.StatusCode).
			Component(componentGenreNet).
			Category(errors.CategoryConfiguration).
			Context("model", c.model).
			Build()
	}
	return nil
}

// Classify uploads the file and returns every class score. 5xx responses and
// transport failures are retried with doubling delays.
func (c *remoteClassifier) Classify(ctx context.Context, path string) ([]Prediction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to read audio file: %w", err)).
			Component(componentGenreNet).
			Category(errors.CategoryFileIO).
			Build()
	}
	body, err := json.Marshal(remoteRequest{
		Inputs:     base64.StdEncoding.EncodeToString(data),
		Parameters: remoteParameters{TopK: remoteTopK},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	return c.breaker.Execute(func() ([]Prediction, error) {
		return c.classifyWithRetry(ctx, body)
	})
}

func (c *remoteClassifier) classifyWithRetry(ctx context.Context, body []byte) ([]Prediction, error) {
	delay := c.retryDelay
	for attempt := 0; ; attempt++ {
		predictions, wait, err := c.post(ctx, body)
		if err == nil {
			return predictions, nil
		}
		if !isRetryable(err) || attempt >= c.maxRetries {
			return nil, err
		}

		if wait <= 0 {
			wait = delay
		}
		wait = min(wait, maxRemoteRetryDelay)
		GetLogger().Warn("remote inference failed, retrying",
			logger.Int("attempt", attempt+1),
			logger.Int("max_retries", c.maxRetries),
			logger.Duration("backoff", wait),
			logger.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, err
		case <-timer.C:
		}
		delay = min(delay*2, maxRemoteRetryDelay)
	}
}

// post sends one inference request. wait is the server's hint for when a
// loading model will be ready.
func (c *remoteClassifier) post(ctx context.Context, body []byte) (predictions []Prediction, wait time.Duration, err error) {
	start := time.Now()
	resp, err := c.client.Post(ctx, c.url, "application/json", body)
	if err != nil {
		c.metrics.RecordRemoteRequest(metrics.StatusError, time.Since(start))
		return nil, 0, errors.New(fmt.Errorf("remote inference request failed: %w", err)).
			Component(componentGenreNet).
			Category(errors.CategoryNetwork).
			Context("model", c.model).
			Build()
	}
	c.metrics.RecordRemoteRequest(strconv.Itoa(resp.StatusCode), time.Since(start))

	data, err := httpclient.ReadBody(resp)
	if err != nil {
		var apiErr remoteErrorBody
		if json.Unmarshal(data, &apiErr) == nil && apiErr.EstimatedTime > 0 {
			wait = time.Duration(apiErr.EstimatedTime * float64(time.Second))
		}
		return nil, wait, errors.New(err).
			Component(componentGenreNet).
			Category(errors.CategoryHTTP).
			Context("model", c.model).
			Context("status_code", resp.StatusCode).
			Build()
	}

	if err := json.Unmarshal(data, &predictions); err != nil {
		var apiErr remoteErrorBody
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, 0, errors.Newf("remote inference error: %s", apiErr.Error).
				Component(componentGenreNet).
				Category(errors.CategoryAudioAnalysis).
				Context("model", c.model).
				Build()
		}
		return nil, 0, errors.New(fmt.Errorf("failed to decode inference response: %w", err)).
			Component(componentGenreNet).
			Category(errors.CategoryAudioAnalysis).
			Context("model", c.model).
			Build()
	}

	for i := range predictions {
		predictions[i].Label = strings.TrimSpace(predictions[i].Label)
		predictions[i].Score = clamp01(predictions[i].Score)
	}
	return predictions, 0, nil
}

// isRetryable reports whether err is a transport failure or a 5xx response.
func isRetryable(err error) bool {
	if errors.IsCategory(err, errors.CategoryNetwork) {
		return true
	}
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}
	return false
}

func (c *remoteClassifier) Close() error {
	c.client.Close()
	return nil
}
