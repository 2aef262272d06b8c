// Package genrenet owns the audio genre classifier: lazy single-flight model
// construction through Handle, and the TensorFlow Lite and remote inference
// backends behind the Classifier interface.
package genrenet

import (
	"context"

	"github.com/tphakala/genrenet-go/internal/errors"
)

const componentGenreNet = "genrenet"

// Prediction is the score of one class label. Scores are in [0, 1].
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classifier scores an audio file against every class the model knows.
// Implementations must be safe for concurrent use.
type Classifier interface {
	// Classify returns one Prediction per class, in no particular order.
	Classify(ctx context.Context, path string) ([]Prediction, error)
	// Close releases the model resources.
	Close() error
}

// Loader constructs a Classifier. It is called by Handle at most once per
// load attempt.
type Loader func(ctx context.Context) (Classifier, error)

// IsModelLoadError reports whether err is a model construction failure.
func IsModelLoadError(err error) bool {
	return errors.IsCategory(err, errors.CategoryModelLoad)
}

// IsInferenceError reports whether err is a classification failure.
func IsInferenceError(err error) bool {
	return errors.IsCategory(err, errors.CategoryAudioAnalysis)
}
