package pipeline

import (
	"strings"

	"github.com/tphakala/genrenet-go/internal/errors"
	"github.com/tphakala/genrenet-go/internal/genrenet"
)

// GenrePrediction is the response for one classified upload.
type GenrePrediction struct {
	Genre         string             `json:"genre"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// Shape turns raw class scores into a GenrePrediction. Genre is the
// lower-cased label of the highest score, the first one winning exact ties.
// Probabilities are keyed by NormalizeLabel; when two labels normalize to the
// same key the later one wins.
func Shape(predictions []genrenet.Prediction) (*GenrePrediction, error) {
	if len(predictions) == 0 {
		return nil, errors.Newf("classifier returned no predictions").
			Component(componentPipeline).
			Category(errors.CategoryAudioAnalysis).
			Build()
	}

	best := 0
	probabilities := make(map[string]float64, len(predictions))
	for i, p := range predictions {
		if p.Score > predictions[best].Score {
			best = i
		}
		probabilities[NormalizeLabel(p.Label)] = p.Score
	}

	return &GenrePrediction{
		Genre:         strings.ToLower(predictions[best].Label),
		Probabilities: probabilities,
	}, nil
}

// NormalizeLabel lower-cases label, turns spaces into underscores and keeps
// the segment after the last underscore or hyphen.
func NormalizeLabel(label string) string {
	key := strings.ReplaceAll(strings.ToLower(label), " ", "_")
	if i := strings.LastIndexAny(key, "_-"); i >= 0 {
		return key[i+1:]
	}
	return key
}
