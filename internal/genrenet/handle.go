package genrenet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tphakala/genrenet-go/internal/errors"
	"github.com/tphakala/genrenet-go/internal/logger"
	"github.com/tphakala/genrenet-go/internal/observability/metrics"
)

// State is the lifecycle state of a Handle.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	defaultRetryBackoff    = 2 * time.Second
	defaultMaxRetryBackoff = time.Minute

	loadKey = "load"
)

// Handle lazily constructs a Classifier on first use and shares it between
// all callers. Concurrent first callers share a single load. A failed load is
// remembered for a backoff window that doubles with every consecutive
// failure; once the window passes the next Get tries again.
type Handle struct {
	loader     Loader
	backend    string
	metrics    *metrics.GenreNetMetrics
	backoff    time.Duration
	maxBackoff time.Duration
	now        func() time.Time

	group singleflight.Group

	mu         sync.RWMutex
	generation uint64 // bumped by Close; a load from an older generation is discarded
	state      State
	classifier Classifier
	lastErr    error
	failedAt   time.Time
	failures   int
}

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// WithBackoff sets the initial and maximum wait after a failed load. An
// initial backoff of 0 retries on every call.
func WithBackoff(initial, maximum time.Duration) HandleOption {
	return func(h *Handle) {
		h.backoff = initial
		h.maxBackoff = maximum
	}
}

// WithMetrics records load attempts and model state.
func WithMetrics(m *metrics.GenreNetMetrics) HandleOption {
	return func(h *Handle) {
		h.metrics = m
	}
}

// WithBackendName sets the backend name used in logs, errors and metrics.
func WithBackendName(name string) HandleOption {
	return func(h *Handle) {
		h.backend = name
	}
}

// NewHandle returns an uninitialized Handle that builds its Classifier with loader.
func NewHandle(loader Loader, opts ...HandleOption) *Handle {
	h := &Handle{
		loader:     loader,
		backend:    "unknown",
		backoff:    defaultRetryBackoff,
		maxBackoff: defaultMaxRetryBackoff,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.maxBackoff < h.backoff {
		h.maxBackoff = h.backoff
	}
	return h
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Get returns the shared Classifier, loading it if needed. Load failures are
// returned as model-loading errors. A caller whose ctx ends while waiting on
// a shared load returns early; the load itself keeps running for the others.
func (h *Handle) Get(ctx context.Context) (Classifier, error) {
	if c, done, err := h.cached(); done {
		return c, err
	}

	// The load must not die with whichever caller happened to start it.
	loadCtx := context.WithoutCancel(ctx)
	ch := h.group.DoChan(loadKey, func() (any, error) {
		return h.load(loadCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Classifier), nil
	case <-ctx.Done():
		return nil, errors.New(fmt.Errorf("waiting for model load: %w", ctx.Err())).
			Component(componentGenreNet).
			Category(errors.CategoryModelLoad).
			Context("backend", h.backend).
			Build()
	}
}

// cached returns the ready classifier, or the remembered failure while the
// backoff window is open. done is false when a load should be attempted.
func (h *Handle) cached() (c Classifier, done bool, err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	switch h.state {
	case StateReady:
		return h.classifier, true, nil
	case StateFailed:
		if h.now().Before(h.failedAt.Add(h.retryWindow())) {
			return nil, true, h.lastErr
		}
	}
	return nil, false, nil
}

// retryWindow is the wait after the current run of failures. Caller holds mu.
func (h *Handle) retryWindow() time.Duration {
	if h.backoff <= 0 || h.failures == 0 {
		return 0
	}
	window := h.backoff
	for i := 1; i < h.failures; i++ {
		window *= 2
		if window >= h.maxBackoff {
			return h.maxBackoff
		}
	}
	return min(window, h.maxBackoff)
}

func (h *Handle) load(ctx context.Context) (Classifier, error) {
	// A flight that finished just before this one started may have settled it.
	if c, done, err := h.cached(); done {
		return c, err
	}

	h.mu.RLock()
	generation := h.generation
	h.mu.RUnlock()

	log := GetLogger()
	log.Info("loading classification model", logger.String("backend", h.backend))

	start := time.Now()
	c, err := h.loader(ctx)
	if err == nil && c == nil {
		err = fmt.Errorf("loader returned no classifier")
	}
	elapsed := time.Since(start)
	h.metrics.RecordModelLoad(h.backend, elapsed, err)

	h.mu.Lock()
	if h.generation != generation {
		h.mu.Unlock()
		return nil, h.discardLoad(c, err)
	}
	defer h.mu.Unlock()

	if err != nil {
		h.failures++
		h.state = StateFailed
		h.failedAt = h.now()
		h.lastErr = errors.New(err).
			Component(componentGenreNet).
			Category(errors.CategoryModelLoad).
			Context("backend", h.backend).
			Context("consecutive_failures", h.failures).
			Timing("model-load", elapsed).
			Build()

		log.Error("model load failed",
			logger.String("backend", h.backend),
			logger.Int("consecutive_failures", h.failures),
			logger.Duration("retry_after", h.retryWindow()),
			logger.Error(err))
		return nil, h.lastErr
	}

	h.state = StateReady
	h.classifier = c
	h.lastErr = nil
	h.failures = 0

	log.Info("classification model loaded",
		logger.String("backend", h.backend),
		logger.Duration("duration", elapsed))
	return c, nil
}

// discardLoad releases the result of a load that finished after Close. The
// classifier is never published, so nothing else would close it.
func (h *Handle) discardLoad(c Classifier, loadErr error) error {
	cause := errors.NewStd("handle closed while the model was loading")
	if loadErr != nil {
		cause = fmt.Errorf("handle closed while the model was loading: %w", loadErr)
	}
	if c != nil {
		h.metrics.SetModelLoaded(false)
		if err := c.Close(); err != nil {
			GetLogger().Warn("error releasing discarded classifier",
				logger.String("backend", h.backend),
				logger.Error(err))
		}
	}
	GetLogger().Info("discarded model load that finished after close",
		logger.String("backend", h.backend))

	return errors.New(cause).
		Component(componentGenreNet).
		Category(errors.CategoryModelLoad).
		Context("backend", h.backend).
		Build()
}

// Classify loads the classifier if needed and scores the file at path
// against all classes. Load failures keep their model-loading category;
// everything else is returned as an inference error.
func (h *Handle) Classify(ctx context.Context, path string) ([]Prediction, error) {
	c, err := h.Get(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	predictions, err := c.Classify(ctx, path)
	if err != nil {
		return nil, errors.New(err).
			Component(componentGenreNet).
			Category(errors.CategoryAudioAnalysis).
			Context("backend", h.backend).
			Timing("classify", time.Since(start)).
			Build()
	}
	return predictions, nil
}

// Preload attempts to load the classifier. Failure is logged and never fatal:
// a later Get retries once the backoff window passes.
func (h *Handle) Preload(ctx context.Context) bool {
	if _, err := h.Get(ctx); err != nil {
		GetLogger().Warn("model preload failed, will retry on first request",
			logger.String("backend", h.backend),
			logger.Error(err))
		return false
	}
	return true
}

// Close releases the loaded classifier. A later Get loads it again.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.generation++
	c := h.classifier
	h.classifier = nil
	h.state = StateUninitialized
	h.lastErr = nil
	h.failures = 0

	if c == nil {
		return nil
	}
	h.metrics.SetModelLoaded(false)
	if err := c.Close(); err != nil {
		return errors.New(err).
			Component(componentGenreNet).
			Category(errors.CategoryState).
			Context("operation", "close_classifier").
			Build()
	}
	return nil
}
