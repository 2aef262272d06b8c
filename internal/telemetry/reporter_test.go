package telemetry

import (
	"fmt"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/genrenet-go/internal/errors"
)

func newTestHub(t *testing.T) (*sentry.Hub, *mockTransport) {
	t.Helper()
	transport := &mockTransport{}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:            "https://public@sentry.example.com/1",
		Transport:      transport,
		DisableMetrics: true,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return sentry.NewHub(client, sentry.NewScope()), transport
}

func TestSentryReporter_ReportsScrubbedEvent(t *testing.T) {
	t.Parallel()

	hub, transport := newTestHub(t)
	reporter := NewSentryReporter(hub, true)

	ee := errors.New(fmt.Errorf("failed to read model file: open /home/alice/models/genre.tflite: no such file")).
		Component("genrenet").
		Category(errors.CategoryModelLoad).
		Context("operation", "load_model").
		Context("model_path", "/home/alice/models/genre.tflite").
		Build()

	reporter.ReportError(ee)

	events := transport.Events()
	require.Len(t, events, 1)
	event := events[0]

	assert.Equal(t, sentry.LevelError, event.Level)
	assert.NotContains(t, event.Message, "alice")
	assert.Contains(t, event.Message, "[model-loading]")
	assert.Contains(t, event.Message, "genre.tflite")
	require.Len(t, event.Exception, 1)
	assert.Equal(t, "Genrenet Model Loading Error Load Model", event.Exception[0].Type)
	assert.Equal(t, "genrenet", event.Tags["component"])
	assert.Equal(t, "model-loading", event.Tags["category"])
	assert.NotContains(t, fmt.Sprint(event.Contexts["model_path"]), "alice")
	assert.True(t, ee.IsReported())
}

func TestSentryReporter_ReportsOnce(t *testing.T) {
	t.Parallel()

	hub, transport := newTestHub(t)
	reporter := NewSentryReporter(hub, true)

	inner := errors.Newf("connection refused").Category(errors.CategoryNetwork).Build()
	reporter.ReportError(inner)
	reporter.ReportError(inner)

	outer := errors.New(inner).Category(errors.CategoryAudioAnalysis).Build()
	reporter.ReportError(outer)

	events := transport.Events()
	require.Len(t, events, 1)
	assert.Equal(t, sentry.LevelWarning, events[0].Level)
	assert.True(t, outer.IsReported())
}

func TestSentryReporter_Disabled(t *testing.T) {
	t.Parallel()

	hub, transport := newTestHub(t)
	reporter := NewSentryReporter(hub, false)
	assert.False(t, reporter.IsEnabled())
	assert.False(t, NewSentryReporter(nil, true).IsEnabled())

	reporter.ReportError(errors.Newf("boom").Category(errors.CategoryGeneric).Build())
	assert.Empty(t, transport.Events())
}

func TestApplyPrivacyFilters(t *testing.T) {
	t.Parallel()

	event := sentry.NewEvent()
	event.ServerName = "studio-host"
	event.User = sentry.User{ID: "42", IPAddress: "10.0.0.1"}
	event.Contexts["os"] = sentry.Context{"name": "linux"}
	event.Contexts["model"] = sentry.Context{"value": "genre"}
	event.Extra["component"] = "api"
	event.Extra["secret"] = "x"
	event.Tags["hostname"] = "studio-host"
	event.Tags["category"] = "network"

	filtered := applyPrivacyFilters(event)

	assert.Empty(t, filtered.ServerName)
	assert.True(t, filtered.User.IsEmpty())
	assert.NotContains(t, filtered.Contexts, "os")
	assert.Contains(t, filtered.Contexts, "model")
	assert.Equal(t, map[string]any{"component": "api"}, filtered.Extra)
	assert.NotContains(t, filtered.Tags, "hostname")
	assert.Equal(t, "network", filtered.Tags["category"])
}

func TestErrorTitleFallsBackToType(t *testing.T) {
	t.Parallel()

	ee := &errors.EnhancedError{Err: errors.NewStd("x")}
	assert.Equal(t, "*errors.errorString", errorTitle(ee))
}
