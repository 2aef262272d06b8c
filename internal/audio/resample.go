package audio

import (
	"github.com/tphakala/genrenet-go/internal/errors"
)

// Resample converts samples from one rate to another with linear interpolation.
// The input slice is returned unchanged when the rates match.
func Resample(samples []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, errors.Newf("invalid sample rates: from %d to %d", fromRate, toRate).
			Component(componentAudio).
			Category(errors.CategoryAudio).
			Build()
	}
	if fromRate == toRate || len(samples) == 0 {
		return samples, nil
	}

	outLen := int(int64(len(samples)) * int64(toRate) / int64(fromRate))
	out := make([]float32, outLen)
	ratio := float64(fromRate) / float64(toRate)
	last := len(samples) - 1

	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out, nil
}
