package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/tphakala/genrenet-go/internal/api/middleware"
	"github.com/tphakala/genrenet-go/internal/conf"
	"github.com/tphakala/genrenet-go/internal/genrenet"
	"github.com/tphakala/genrenet-go/internal/logger"
	"github.com/tphakala/genrenet-go/internal/observability"
	"github.com/tphakala/genrenet-go/internal/observability/metrics"
	"github.com/tphakala/genrenet-go/internal/pipeline"
)

// Predictor runs one prediction request. *pipeline.Pipeline implements it.
type Predictor interface {
	Handle(ctx context.Context, upload pipeline.Upload) (*pipeline.GenrePrediction, error)
}

// ModelStater reports the lifecycle state of the shared model.
// *genrenet.Handle implements it.
type ModelStater interface {
	State() genrenet.State
}

// Server is the HTTP server for GenreNet-Go.
type Server struct {
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings

	predictor Predictor
	model     ModelStater
	metrics   *observability.Metrics

	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetrics enables the /metrics route and HTTP request metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithConfig overrides the configuration derived from settings.
func WithConfig(cfg *Config) ServerOption {
	return func(s *Server) {
		s.config = cfg
	}
}

// New creates a new HTTP server serving predictor. model may be nil, in which
// case /health reports the model state as unknown.
func New(settings *conf.Settings, predictor Predictor, model ModelStater, opts ...ServerOption) (*Server, error) {
	if predictor == nil {
		return nil, fmt.Errorf("predictor is required")
	}

	s := &Server{
		config:    ConfigFromSettings(settings),
		settings:  settings,
		predictor: predictor,
		model:     model,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.settings == nil {
		s.settings = &conf.Settings{}
	}
	if err := s.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = s.config.Debug
	s.echo.HTTPErrorHandler = s.handleError
	s.echo.IPExtractor = newIPExtractor(s.config.TrustedProxies)

	s.echo.Server.ReadTimeout = s.config.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.WriteTimeout
	s.echo.Server.IdleTimeout = s.config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	GetLogger().Info("HTTP server initialized",
		logger.String("address", s.config.Address()),
		logger.String("body_limit", s.config.BodyLimit),
		logger.Float64("rate_limit", s.config.RateLimit),
		logger.Bool("metrics", s.metrics != nil),
		logger.Bool("debug", s.config.Debug))

	return s, nil
}

// newIPExtractor decides where c.RealIP() comes from. Without trusted proxies
// forwarding headers are ignored, otherwise X-Forwarded-For is walked back
// through the listed proxies only. Entries were checked by Validate.
func newIPExtractor(trustedProxies []string) echo.IPExtractor {
	ranges, _ := conf.ParseTrustedProxies(trustedProxies)
	if len(ranges) == 0 {
		return echo.ExtractIPDirect()
	}
	options := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, r := range ranges {
		options = append(options, echo.TrustIPRange(r))
	}
	return echo.ExtractIPFromXFFHeader(options...)
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())

	s.echo.Use(mw.NewRequestID())

	var httpMetrics *metrics.HTTPMetrics
	if s.metrics != nil {
		httpMetrics = s.metrics.HTTP
	}
	s.echo.Use(mw.NewRequestLogger(GetLogger(), httpMetrics))

	securityConfig := mw.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = s.config.AllowedOrigins
	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewSecureHeaders(securityConfig))

	if s.config.RateLimit > 0 {
		s.echo.Use(mw.NewRateLimiter(s.config.RateLimit))
	}

	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.POST("/predict", s.predict)
	s.echo.GET("/health", s.healthCheck)

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Start serves HTTP requests and blocks until the server is shut down.
// A graceful shutdown is not reported as an error.
func (s *Server) Start() error {
	addr := s.config.Address()
	GetLogger().Info("starting HTTP server", logger.String("address", addr))

	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Run serves until ctx is done, then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	GetLogger().Info("shutdown signal received, initiating graceful shutdown")
	if err := s.Shutdown(); err != nil {
		return err
	}
	return <-errCh
}

// Shutdown stops accepting connections and waits up to the shutdown timeout
// for in-flight requests to finish.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		GetLogger().Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}

	GetLogger().Info("server shutdown complete")
	return nil
}

// Echo returns the underlying Echo instance.
// This is useful for testing or advanced configuration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
