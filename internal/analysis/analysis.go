// Package analysis wires the configured components together and runs them,
// either as the long-lived HTTP service or as a one-shot file classification.
package analysis

import (
	"time"

	"github.com/tphakala/genrenet-go/internal/conf"
	"github.com/tphakala/genrenet-go/internal/genrenet"
	"github.com/tphakala/genrenet-go/internal/logger"
	"github.com/tphakala/genrenet-go/internal/observability"
	"github.com/tphakala/genrenet-go/internal/observability/metrics"
	"github.com/tphakala/genrenet-go/internal/pipeline"
	"github.com/tphakala/genrenet-go/internal/staging"
)

// staleAfter is how old a leftover staged file must be before the startup
// sweep removes it when no pipeline timeout is configured.
const staleAfter = time.Hour

// Components are the long-lived parts shared by every request.
type Components struct {
	Metrics  *observability.Metrics // nil when metrics are disabled
	Area     *staging.Area
	Handle   *genrenet.Handle
	Pipeline *pipeline.Pipeline
}

type options struct {
	loader genrenet.Loader
}

// Option customizes component construction.
type Option func(*options)

// WithLoader replaces the configured model backend.
func WithLoader(loader genrenet.Loader) Option {
	return func(o *options) {
		o.loader = loader
	}
}

// NewComponents builds the metrics registry, staging area, model handle and
// request pipeline from settings. The model is not loaded here.
func NewComponents(settings *conf.Settings, opts ...Option) (*Components, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Components{}
	var gm *metrics.GenreNetMetrics
	if settings.Metrics.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			return nil, err
		}
		c.Metrics = m
		gm = m.GenreNet
	}

	area, err := staging.NewArea(settings.Staging.Dir)
	if err != nil {
		return nil, err
	}
	c.Area = area

	if o.loader != nil {
		backend := settings.Model.Backend
		if backend == "" {
			backend = "custom"
		}
		c.Handle = genrenet.NewHandle(o.loader,
			genrenet.WithBackendName(backend),
			genrenet.WithBackoff(settings.Model.RetryBackoff, settings.Model.MaxRetryBackoff),
			genrenet.WithMetrics(gm))
	} else {
		c.Handle, err = genrenet.NewHandleFromSettings(settings, gm)
		if err != nil {
			return nil, err
		}
	}

	c.Pipeline = pipeline.New(c.Handle, c.Area,
		pipeline.WithTimeout(settings.Pipeline.Timeout),
		pipeline.WithMetrics(gm))

	return c, nil
}

// SweepStaging removes staged files left behind by an earlier process.
// Files younger than the request timeout may belong to a running request of
// another instance sharing the directory and are kept.
func (c *Components) SweepStaging(timeout time.Duration) {
	if timeout <= 0 {
		timeout = staleAfter
	}
	removed, err := c.Area.Sweep(time.Now().Add(-timeout))
	if err != nil {
		GetLogger().Warn("staging sweep incomplete",
			logger.String("dir", c.Area.Dir()),
			logger.Int("removed", removed),
			logger.Error(err))
		return
	}
	if removed > 0 {
		GetLogger().Info("removed stale staged uploads",
			logger.String("dir", c.Area.Dir()),
			logger.Int("removed", removed))
	}
}

// Close releases the model.
func (c *Components) Close() error {
	if c.Handle == nil {
		return nil
	}
	return c.Handle.Close()
}
