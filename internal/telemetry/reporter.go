package telemetry

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/genrenet-go/internal/errors"
)

// SentryReporter sends enhanced errors to Sentry with scrubbed messages and
// context values. It implements errors.TelemetryReporter.
type SentryReporter struct {
	hub     *sentry.Hub
	enabled bool
}

// NewSentryReporter returns a reporter capturing on hub.
func NewSentryReporter(hub *sentry.Hub, enabled bool) *SentryReporter {
	return &SentryReporter{hub: hub, enabled: enabled}
}

// IsEnabled returns whether reporting is active.
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled && sr.hub != nil
}

// ReportError captures ee once. Errors that wrap an already reported error
// are skipped so a failure is not reported again at every layer.
func (sr *SentryReporter) ReportError(ee *errors.EnhancedError) {
	if !sr.IsEnabled() || ee.IsReported() {
		return
	}
	var inner *errors.EnhancedError
	if errors.As(ee.Err, &inner) && inner.IsReported() {
		ee.MarkReported()
		return
	}

	message := errors.ScrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))
	title := errorTitle(ee)
	level := errorLevel(ee.Category)

	sr.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_title", title)
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))
		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = errors.ScrubMessage(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}
		scope.SetLevel(level)
		scope.SetFingerprint([]string{title, ee.GetComponent(), string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sr.hub.CaptureEvent(event)
	})

	ee.MarkReported()
}

// errorTitle builds a grouping title such as "Genrenet Model Loading Error".
func errorTitle(ee *errors.EnhancedError) string {
	var parts []string
	if component := ee.GetComponent(); component != "" {
		parts = append(parts, titleCase(component))
	}
	if category := categoryTitle(ee.Category); category != "" {
		parts = append(parts, category)
	}
	if op, ok := ee.GetContext()["operation"].(string); ok && op != "" {
		words := strings.Fields(strings.ReplaceAll(op, "_", " "))
		for i, w := range words {
			words[i] = titleCase(w)
		}
		parts = append(parts, strings.Join(words, " "))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%T", ee.Err)
	}
	return strings.Join(parts, " ")
}

func categoryTitle(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryModelLoad:
		return "Model Loading Error"
	case errors.CategoryLabelLoad:
		return "Label Loading Error"
	case errors.CategoryAudioAnalysis:
		return "Inference Error"
	case errors.CategoryAudio:
		return "Audio Processing Error"
	case errors.CategoryDiskCleanup:
		return "Cleanup Error"
	case errors.CategoryFileIO:
		return "File I/O Error"
	case errors.CategoryNetwork:
		return "Network Error"
	case errors.CategoryHTTP:
		return "HTTP Error"
	case errors.CategoryConfiguration:
		return "Configuration Error"
	default:
		return string(category)
	}
}

func errorLevel(category errors.ErrorCategory) sentry.Level {
	switch category {
	case errors.CategoryNetwork, errors.CategoryHTTP, errors.CategoryDiskCleanup,
		errors.CategoryFileIO, errors.CategoryCancellation, errors.CategoryTimeout:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
