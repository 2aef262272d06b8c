// Package pipeline runs one prediction request end to end: it validates the
// upload name, stages the stream to a scratch file, classifies it through
// the shared model handle, shapes the scores into a GenrePrediction and
// always removes the staged file again.
package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/tphakala/genrenet-go/internal/errors"
	"github.com/tphakala/genrenet-go/internal/genrenet"
	"github.com/tphakala/genrenet-go/internal/logger"
	"github.com/tphakala/genrenet-go/internal/observability/metrics"
	"github.com/tphakala/genrenet-go/internal/staging"
)

const componentPipeline = "pipeline"

// Upload is an untrusted audio upload. Content is consumed once by staging
// and not retained.
type Upload struct {
	Filename string
	Content  io.Reader
}

// Classifier scores a staged audio file. *genrenet.Handle implements it.
type Classifier interface {
	Classify(ctx context.Context, path string) ([]genrenet.Prediction, error)
}

// Pipeline handles prediction requests. It holds no per-request state and is
// safe for concurrent use.
type Pipeline struct {
	classifier Classifier
	area       *staging.Area
	timeout    time.Duration
	metrics    *metrics.GenreNetMetrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTimeout bounds each request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

// WithMetrics records request outcomes, upload sizes and cleanup failures.
func WithMetrics(m *metrics.GenreNetMetrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// New returns a Pipeline that classifies through classifier and stages
// uploads in area.
func New(classifier Classifier, area *staging.Area, opts ...Option) *Pipeline {
	p := &Pipeline{
		classifier: classifier,
		area:       area,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle runs the request. Validation failures are returned before anything
// is written to disk. Once staged, the file is released on every path,
// including cancellation; a failed release is logged and counted but never
// replaces the request's own result.
func (p *Pipeline) Handle(ctx context.Context, upload Upload) (result *GenrePrediction, err error) {
	start := time.Now()
	finished := p.metrics.RequestStarted()
	defer func() {
		finished()
		p.metrics.RecordPrediction(time.Since(start), err)
	}()

	ext, err := ValidateFilename(upload.Filename)
	if err != nil {
		return nil, err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	file, err := p.area.Stage(ctx, ext, upload.Content)
	if err != nil {
		return nil, err
	}
	defer p.release(ctx, file)
	p.metrics.RecordUpload(file.Size)

	predictions, err := p.classifier.Classify(ctx, file.Path)
	if err != nil {
		return nil, err
	}

	result, err = Shape(predictions)
	if err != nil {
		return nil, err
	}

	GetLogger().WithContext(ctx).Debug("prediction complete",
		logger.String("genre", result.Genre),
		logger.Int("classes", len(predictions)),
		logger.Int64("bytes", file.Size),
		logger.Duration("duration", time.Since(start)))
	return result, nil
}

func (p *Pipeline) release(ctx context.Context, file *staging.File) {
	if err := file.Release(); err != nil {
		p.metrics.RecordCleanupError()
		GetLogger().WithContext(ctx).Warn("failed to remove staged upload",
			logger.String("path", file.Path),
			logger.Error(err))
	}
}

// ValidateFilename checks the upload name against the allowed audio
// extensions with a case-insensitive suffix match and returns the matched
// extension in lower case.
func ValidateFilename(name string) (string, error) {
	if ext, ok := matchExtension(name); ok {
		return ext, nil
	}
	return "", errors.Newf("%s", InvalidExtensionMessage).
		Component(componentPipeline).
		Category(errors.CategoryValidation).
		Context("filename_ext", extensionHint(name)).
		Build()
}

// Describe maps err to the response the caller sees. Validation failures are
// client errors carrying their own message; everything else is a server
// error described as "Server Error: <cause>".
func Describe(err error) (clientError bool, detail string) {
	if errors.IsCategory(err, errors.CategoryValidation) {
		return true, err.Error()
	}
	return false, "Server Error: " + err.Error()
}
