package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tphakala/genrenet-go/internal/conf"
	"github.com/tphakala/genrenet-go/internal/logger"
	"github.com/tphakala/genrenet-go/internal/pipeline"
)

// FileAnalysis classifies a local audio file through the same pipeline the
// HTTP service uses and writes the prediction to w as indented JSON.
func FileAnalysis(ctx context.Context, settings *conf.Settings, path string, w io.Writer, opts ...Option) error {
	if err := validateAudioFile(path); err != nil {
		return err
	}

	components, err := NewComponents(settings, opts...)
	if err != nil {
		return fmt.Errorf("error initializing components: %w", err)
	}
	defer func() {
		if err := components.Close(); err != nil {
			GetLogger().Warn("error releasing model", logger.Error(err))
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening file %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = f.Close() }()

	result, err := components.Pipeline.Handle(ctx, pipeline.Upload{
		Filename: filepath.Base(path),
		Content:  f,
	})
	if err != nil {
		return fmt.Errorf("error classifying %s: %w", filepath.Base(path), err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// validateAudioFile checks that path is a non-empty regular file.
func validateAudioFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error accessing file %s: %w", filepath.Base(path), err)
	}
	if info.IsDir() {
		return fmt.Errorf("the path %s is a directory, not a file", filepath.Base(path))
	}
	if info.Size() == 0 {
		return fmt.Errorf("file %s is empty (0 bytes)", filepath.Base(path))
	}
	return nil
}
