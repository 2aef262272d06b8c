// Package middleware provides HTTP middleware components for the GenreNet-Go server.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/genrenet-go/internal/logger"
	"github.com/tphakala/genrenet-go/internal/observability/metrics"
)

// NewRequestID assigns every request an X-Request-ID (reusing one sent by the
// client) and stores it in the request context as the log trace ID.
func NewRequestID() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), id)))
		},
	})
}

// NewRequestLogger creates a request logging middleware that also feeds the
// HTTP metrics. Either argument may be nil.
func NewRequestLogger(log logger.Logger, m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return NewRequestLoggerWithSkipper(log, m, nil)
}

// NewRequestLoggerWithSkipper creates a request logging middleware with a custom skipper.
func NewRequestLoggerWithSkipper(log logger.Logger, m *metrics.HTTPMetrics, skipper middleware.Skipper) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper:         skipper,
		LogStatus:       true,
		LogURI:          true,
		LogMethod:       true,
		LogLatency:      true,
		LogRemoteIP:     true,
		LogError:        true,
		LogRoutePath:    true,
		LogResponseSize: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			route := v.RoutePath
			if route == "" {
				// unmatched routes share one label
				route = "unmatched"
			}
			m.RecordRequest(v.Method, route, v.Status, v.Latency, v.ResponseSize)

			if log == nil {
				return nil
			}

			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
				logger.Int64("bytes_out", v.ResponseSize),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}

			// the request ID middleware put the trace ID on the request context
			log.WithContext(c.Request().Context()).Log(requestLevel(v.Status, route), "request", fields...)
			return nil
		},
	})
}

func requestLevel(status int, route string) logger.LogLevel {
	switch {
	case status >= http.StatusInternalServerError:
		return logger.LogLevelError
	case status >= http.StatusBadRequest:
		return logger.LogLevelWarn
	case route == "/health" || strings.HasPrefix(route, "/metrics"):
		// scraped constantly
		return logger.LogLevelDebug
	default:
		return logger.LogLevelInfo
	}
}
