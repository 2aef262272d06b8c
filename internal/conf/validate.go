// conf/validate.go

package conf

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/labstack/gommon/bytes"
)

const (
	minSampleRate = 8000
	maxSampleRate = 96000
)

var logLevels = []string{"trace", "debug", "info", "warn", "error"}

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) []string{
		validateWebServerSettings,
		validateModelSettings,
		validateRemoteSettings,
		validatePipelineSettings,
		validateSentrySettings,
		validateLoggingSettings,
	}
	for _, validate := range validators {
		ve.Errors = append(ve.Errors, validate(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateWebServerSettings(settings *Settings) []string {
	var errs []string
	ws := &settings.WebServer

	if port, err := strconv.Atoi(ws.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("webserver port must be between 1 and 65535, got %q", ws.Port))
	}
	// parsed the same way the body limit middleware parses it, which panics on bad input
	if limit, err := bytes.Parse(ws.BodyLimit); err != nil || limit <= 0 {
		errs = append(errs, fmt.Sprintf("webserver body limit must look like 50M, got %q", ws.BodyLimit))
	}
	if ws.ReadTimeout < 0 || ws.WriteTimeout < 0 {
		errs = append(errs, "webserver timeouts must not be negative")
	}
	if ws.RateLimit < 0 {
		errs = append(errs, "webserver rate limit must not be negative")
	}
	if _, err := ParseTrustedProxies(ws.TrustedProxies); err != nil {
		errs = append(errs, fmt.Sprintf("webserver trusted proxies: %v", err))
	}
	return errs
}

func validateModelSettings(settings *Settings) []string {
	var errs []string
	m := &settings.Model

	switch m.Backend {
	case BackendTFLite:
		if m.Path == "" {
			errs = append(errs, "model path is required for the tflite backend")
		}
		if m.LabelPath == "" {
			errs = append(errs, "model label path is required for the tflite backend")
		}
	case BackendRemote:
		if m.Name == "" {
			errs = append(errs, "model name is required for the remote backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("model backend must be %s or %s, got %q", BackendTFLite, BackendRemote, m.Backend))
	}

	if m.SampleRate < minSampleRate || m.SampleRate > maxSampleRate {
		errs = append(errs, fmt.Sprintf("model sample rate must be between %d and %d", minSampleRate, maxSampleRate))
	}
	if m.Overlap < 0 {
		errs = append(errs, "model overlap must not be negative")
	}
	if m.Threads < 0 {
		errs = append(errs, "model threads must be at least 0")
	}
	if m.RetryBackoff < 0 {
		errs = append(errs, "model retry backoff must not be negative")
	}
	if m.RetryBackoff > 0 && m.MaxRetryBackoff < m.RetryBackoff {
		errs = append(errs, "model max retry backoff must be at least the retry backoff")
	}
	return errs
}

func validateRemoteSettings(settings *Settings) []string {
	if settings.Model.Backend != BackendRemote {
		return nil
	}

	var errs []string
	r := &settings.Remote
	if err := validateEnvURL(r.Endpoint); err != nil {
		errs = append(errs, fmt.Sprintf("remote endpoint: %v", err))
	}
	if r.Timeout <= 0 {
		errs = append(errs, "remote timeout must be positive")
	}
	if r.MaxRetries < 0 {
		errs = append(errs, "remote max retries must not be negative")
	}
	return errs
}

func validatePipelineSettings(settings *Settings) []string {
	if settings.Pipeline.Timeout <= 0 {
		return []string{"pipeline timeout must be positive"}
	}
	return nil
}

func validateSentrySettings(settings *Settings) []string {
	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		return []string{"sentry dsn is required when sentry is enabled"}
	}
	return nil
}

func validateLoggingSettings(settings *Settings) []string {
	var errs []string
	check := func(name, level string) {
		if level != "" && !slices.Contains(logLevels, level) {
			errs = append(errs, fmt.Sprintf("%s must be one of %s, got %q", name, strings.Join(logLevels, ", "), level))
		}
	}

	l := &settings.Logging
	check("logging default level", l.DefaultLevel)
	if l.Console != nil {
		check("logging console level", l.Console.Level)
	}
	if l.FileOutput != nil {
		check("logging file level", l.FileOutput.Level)
		if l.FileOutput.Enabled && l.FileOutput.Path == "" {
			errs = append(errs, "logging file path is required when file output is enabled")
		}
	}
	for module, level := range l.ModuleLevels {
		check("logging level for module "+module, level)
	}
	return errs
}
