package analysis

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/tphakala/genrenet-go/internal/api"
	"github.com/tphakala/genrenet-go/internal/conf"
	"github.com/tphakala/genrenet-go/internal/logger"
)

// Serve runs the HTTP service until ctx is done or the process receives
// SIGINT or SIGTERM. The model is preloaded in the background when enabled;
// a failed preload is logged and retried by the first prediction request.
func Serve(ctx context.Context, settings *conf.Settings, opts ...Option) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := GetLogger()

	components, err := NewComponents(settings, opts...)
	if err != nil {
		return fmt.Errorf("error initializing components: %w", err)
	}
	components.SweepStaging(settings.Pipeline.Timeout)

	var serverOpts []api.ServerOption
	if components.Metrics != nil {
		serverOpts = append(serverOpts, api.WithMetrics(components.Metrics))
	}
	server, err := api.New(settings, components.Pipeline, components.Handle, serverOpts...)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	if settings.Model.Preload {
		wg.Go(func() {
			log.Info("preloading classification model", logger.String("backend", settings.Model.Backend))
			components.Handle.Preload(context.WithoutCancel(ctx))
		})
	}

	runErr := server.Run(ctx)

	// a preload still in flight must settle before the model is released
	wg.Wait()
	if err := components.Close(); err != nil {
		log.Warn("error releasing model", logger.Error(err))
	}

	log.Info("service stopped")
	return runErr
}
