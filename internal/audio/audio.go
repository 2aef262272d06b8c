// Package audio decodes uploaded audio files into mono float32 PCM and
// splits it into fixed length analysis windows.
package audio

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/tphakala/genrenet-go/internal/errors"
	"github.com/tphakala/genrenet-go/internal/logger"
)

const componentAudio = "audio"

// Decoder converts audio files to mono float32 samples at SampleRate.
// WAV files are read natively; everything else goes through ffmpeg.
type Decoder struct {
	SampleRate int
	FfmpegPath string // resolved ffmpeg binary, empty disables non-WAV input
}

// NewDecoder returns a Decoder producing samples at sampleRate.
func NewDecoder(sampleRate int, ffmpegPath string) *Decoder {
	return &Decoder{SampleRate: sampleRate, FfmpegPath: ffmpegPath}
}

// Decode reads path and returns mono samples in [-1, 1] at d.SampleRate.
func (d *Decoder) Decode(ctx context.Context, path string) ([]float32, error) {
	if d.SampleRate <= 0 {
		return nil, errors.Newf("invalid target sample rate %d", d.SampleRate).
			Component(componentAudio).
			Category(errors.CategoryConfiguration).
			Build()
	}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		samples, err := d.decodeWAV(path)
		if err == nil {
			return samples, nil
		}
		// WAV variants go-audio can't read (float, ADPCM) are left to ffmpeg
		if d.FfmpegPath == "" {
			return nil, err
		}
		GetLogger().Debug("native wav decode failed, falling back to ffmpeg", logger.Error(err))
	}

	return d.decodeFFmpeg(ctx, path)
}

// GetLogger returns the audio package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("audio")
}
