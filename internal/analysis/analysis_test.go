package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/genrenet-go/internal/conf"
	"github.com/tphakala/genrenet-go/internal/errors"
	"github.com/tphakala/genrenet-go/internal/genrenet"
	"github.com/tphakala/genrenet-go/internal/pipeline"
)

type fakeClassifier struct {
	closed atomic.Bool
}

func (f *fakeClassifier) Classify(context.Context, string) ([]genrenet.Prediction, error) {
	return []genrenet.Prediction{
		{Label: "Jazz", Score: 0.25},
		{Label: "Blues", Score: 0.75},
	}, nil
}

func (f *fakeClassifier) Close() error {
	f.closed.Store(true)
	return nil
}

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()

	settings := &conf.Settings{}
	settings.WebServer.Host = "127.0.0.1"
	settings.WebServer.Port = "0"
	settings.Staging.Dir = t.TempDir()
	settings.Pipeline.Timeout = time.Minute
	settings.Metrics.Enabled = true
	return settings
}

func writeAudio(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("RIFF not really audio"), 0o600))
	return path
}

func TestFileAnalysis(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	cls := &fakeClassifier{}
	loader := func(context.Context) (genrenet.Classifier, error) { return cls, nil }

	var out bytes.Buffer
	err := FileAnalysis(t.Context(), settings, writeAudio(t, "tune.wav"), &out, WithLoader(loader))
	require.NoError(t, err)

	var got pipeline.GenrePrediction
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "blues", got.Genre)
	assert.Equal(t, map[string]float64{"jazz": 0.25, "blues": 0.75}, got.Probabilities)
	assert.True(t, cls.closed.Load(), "model must be released after the run")

	entries, err := os.ReadDir(settings.Staging.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileAnalysis_Errors(t *testing.T) {
	t.Parallel()

	loader := func(context.Context) (genrenet.Classifier, error) { return &fakeClassifier{}, nil }

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		err := FileAnalysis(t.Context(), testSettings(t), filepath.Join(t.TempDir(), "nope.wav"), &bytes.Buffer{}, WithLoader(loader))
		assert.ErrorContains(t, err, "error accessing file nope.wav")
	})

	t.Run("directory", func(t *testing.T) {
		t.Parallel()
		err := FileAnalysis(t.Context(), testSettings(t), t.TempDir(), &bytes.Buffer{}, WithLoader(loader))
		assert.ErrorContains(t, err, "is a directory")
	})

	t.Run("empty file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "empty.wav")
		require.NoError(t, os.WriteFile(path, nil, 0o600))
		err := FileAnalysis(t.Context(), testSettings(t), path, &bytes.Buffer{}, WithLoader(loader))
		assert.ErrorContains(t, err, "is empty")
	})

	t.Run("unsupported extension", func(t *testing.T) {
		t.Parallel()
		err := FileAnalysis(t.Context(), testSettings(t), writeAudio(t, "tune.ogg"), &bytes.Buffer{}, WithLoader(loader))
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	})
}

func TestSweepStaging(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	components, err := NewComponents(settings,
		WithLoader(func(context.Context) (genrenet.Classifier, error) { return &fakeClassifier{}, nil }))
	require.NoError(t, err)

	stale := filepath.Join(settings.Staging.Dir, uuid.New().String()+".wav")
	fresh := filepath.Join(settings.Staging.Dir, uuid.New().String()+".wav")
	unrelated := filepath.Join(settings.Staging.Dir, "notes.txt")
	old := time.Now().Add(-2 * time.Hour)
	for _, path := range []string{stale, fresh, unrelated} {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	}
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(unrelated, old, old))

	components.SweepStaging(settings.Pipeline.Timeout)

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, unrelated)
}

func TestNewComponents_MetricsDisabled(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	settings.Metrics.Enabled = false
	components, err := NewComponents(settings,
		WithLoader(func(context.Context) (genrenet.Classifier, error) { return &fakeClassifier{}, nil }))
	require.NoError(t, err)
	assert.Nil(t, components.Metrics)
	assert.Equal(t, genrenet.StateUninitialized, components.Handle.State())
	assert.NoError(t, components.Close())
}

func TestNewComponents_UnknownBackend(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	settings.Model.Backend = "onnx"
	_, err := NewComponents(settings)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestServe_StopsOnCancel(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	settings.Model.Preload = true
	cls := &fakeClassifier{}
	loader := func(context.Context) (genrenet.Classifier, error) { return cls, nil }

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, Serve(ctx, settings, WithLoader(loader)))
	assert.True(t, cls.closed.Load(), "preloaded model must be released on shutdown")
}
