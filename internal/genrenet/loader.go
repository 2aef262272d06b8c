package genrenet

import (
	"github.com/tphakala/genrenet-go/internal/audio"
	"github.com/tphakala/genrenet-go/internal/conf"
	"github.com/tphakala/genrenet-go/internal/errors"
	"github.com/tphakala/genrenet-go/internal/logger"
	"github.com/tphakala/genrenet-go/internal/observability/metrics"
)

// NewLoader returns the Loader for the configured backend.
func NewLoader(settings *conf.Settings, m *metrics.GenreNetMetrics) (Loader, error) {
	switch settings.Model.Backend {
	case conf.BackendTFLite, "":
		return NewTFLiteLoader(TFLiteConfig{
			ModelPath:    settings.Model.Path,
			LabelPath:    settings.Model.LabelPath,
			SampleRate:   settings.Model.SampleRate,
			Overlap:      settings.Model.Overlap,
			Threads:      settings.Model.Threads,
			UseXNNPACK:   settings.Model.UseXNNPACK,
			ApplySoftmax: settings.Model.ApplySoftmax,
			Decoder:      audio.NewDecoder(settings.Model.SampleRate, resolveFfmpeg(settings.Audio.FfmpegPath)),
			Metrics:      m,
		}), nil
	case conf.BackendRemote:
		return NewRemoteLoader(RemoteConfig{
			Endpoint:   settings.Remote.Endpoint,
			Model:      settings.Model.Name,
			Token:      settings.Remote.Token,
			Timeout:    settings.Remote.Timeout,
			MaxRetries: settings.Remote.MaxRetries,
			Metrics:    m,
		}), nil
	default:
		return nil, errors.Newf("unknown model backend %q", settings.Model.Backend).
			Component(componentGenreNet).
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// NewHandleFromSettings builds a Handle for the configured backend.
func NewHandleFromSettings(settings *conf.Settings, m *metrics.GenreNetMetrics) (*Handle, error) {
	loader, err := NewLoader(settings, m)
	if err != nil {
		return nil, err
	}
	backend := settings.Model.Backend
	if backend == "" {
		backend = conf.BackendTFLite
	}
	return NewHandle(loader,
		WithBackendName(backend),
		WithBackoff(settings.Model.RetryBackoff, settings.Model.MaxRetryBackoff),
		WithMetrics(m),
	), nil
}

// resolveFfmpeg finds ffmpeg for non-WAV input. Without it only WAV uploads
// can be decoded.
func resolveFfmpeg(configured string) string {
	path, err := conf.ValidateToolPath(configured, conf.GetFfmpegBinaryName())
	if err != nil {
		GetLogger().Warn("ffmpeg not available, only WAV input can be decoded", logger.Error(err))
		return ""
	}
	return path
}
