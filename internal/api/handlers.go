package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/genrenet-go/internal/logger"
	"github.com/tphakala/genrenet-go/internal/pipeline"
)

// UploadField is the multipart field the prediction endpoint reads.
const UploadField = "audio"

const missingFileDetail = "No audio file provided. Upload it in the \"audio\" form field."

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status            string  `json:"status"`
	ModelState        string  `json:"model_state"`
	Version           string  `json:"version,omitempty"`
	Uptime            string  `json:"uptime"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	Timestamp         string  `json:"timestamp"`
}

// predict handles POST /predict.
func (s *Server) predict(c echo.Context) error {
	ctx := c.Request().Context()
	log := GetLogger().WithContext(ctx)

	fh, err := uploadedFile(c)
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		log.Debug("request without audio file", logger.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Detail: missingFileDetail})
	}

	log.Info("prediction request received",
		logger.String("filename", fh.Filename),
		logger.Int64("size", fh.Size))

	src, err := fh.Open()
	if err != nil {
		log.Error("failed to open uploaded file", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Server Error: " + err.Error()})
	}
	defer func() { _ = src.Close() }()

	result, err := s.predictor.Handle(ctx, pipeline.Upload{Filename: fh.Filename, Content: src})
	if err != nil {
		clientError, detail := pipeline.Describe(err)
		if clientError {
			log.Info("prediction request rejected", logger.String("detail", detail))
			return c.JSON(http.StatusBadRequest, ErrorResponse{Detail: detail})
		}
		log.Error("prediction failed", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: detail})
	}

	log.Info("prediction succeeded", logger.String("genre", result.Genre))
	return c.JSON(http.StatusOK, result)
}

// uploadedFile returns the "audio" file, or the only file in the form when
// a single differently named field was used.
func uploadedFile(c echo.Context) (*multipart.FileHeader, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}
	if files := form.File[UploadField]; len(files) > 0 {
		return files[0], nil
	}
	if len(form.File) == 1 {
		for _, files := range form.File {
			if len(files) == 1 {
				return files[0], nil
			}
		}
	}
	return nil, fmt.Errorf("no %q file field in form", UploadField)
}

// healthCheck handles GET /health. It always answers 200; the model state is
// informational since a failed model is retried on the next prediction.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)

	state := "unknown"
	if s.model != nil {
		state = s.model.State().String()
	}

	var memUsed float64
	if vm, err := mem.VirtualMemoryWithContext(c.Request().Context()); err == nil {
		memUsed = vm.UsedPercent
	}

	return c.JSON(http.StatusOK, HealthResponse{
		Status:            "healthy",
		ModelState:        state,
		Version:           s.settings.Version,
		Uptime:            uptime.Round(time.Second).String(),
		UptimeSeconds:     uptime.Seconds(),
		MemoryUsedPercent: memUsed,
		Timestamp:         time.Now().Format(time.RFC3339),
	})
}

// handleError renders errors that escape handlers and middleware (unknown
// routes, oversized bodies, panics) in the same {"detail": ...} shape as the
// prediction endpoint.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	detail := "Server Error: " + err.Error()

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			detail = msg
		} else {
			detail = http.StatusText(status)
		}
	}

	if status >= http.StatusInternalServerError {
		GetLogger().WithContext(c.Request().Context()).Error("request failed",
			logger.String("path", c.Path()),
			logger.Error(err))
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, ErrorResponse{Detail: detail})
	}
	if writeErr != nil {
		GetLogger().Warn("failed to write error response", logger.Error(writeErr))
	}
}
