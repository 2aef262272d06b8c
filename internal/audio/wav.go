package audio

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/genrenet-go/internal/errors"
)

const (
	// pcmBufferFrames is the number of frames read from the decoder per call
	pcmBufferFrames = 64 * 1024

	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

func (d *Decoder) decodeWAV(path string) ([]float32, error) {
	file, err := os.Open(path) //nolint:gosec // path is a staged upload
	if err != nil {
		return nil, errors.New(err).
			Component(componentAudio).
			Category(errors.CategoryFileIO).
			Context("operation", "open_wav").
			Build()
	}
	defer func() { _ = file.Close() }()

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.Newf("input is not a valid WAV audio file").
			Component(componentAudio).
			Category(errors.CategoryAudio).
			Context("operation", "read_wav_header").
			Build()
	}
	if decoder.WavAudioFormat != wavFormatPCM && decoder.WavAudioFormat != wavFormatExtensible {
		return nil, errors.Newf("unsupported WAV encoding %d, only PCM is read natively", decoder.WavAudioFormat).
			Component(componentAudio).
			Category(errors.CategoryAudio).
			Build()
	}

	divisor, err := getAudioDivisor(int(decoder.BitDepth))
	if err != nil {
		return nil, err
	}
	// 8-bit WAV is unsigned
	offset := 0
	if decoder.BitDepth == 8 {
		offset = 128
	}

	channels := int(decoder.NumChans)
	if channels < 1 {
		return nil, errors.Newf("invalid channel count %d", channels).
			Component(componentAudio).
			Category(errors.CategoryAudio).
			Build()
	}

	buf := &audio.IntBuffer{
		Data:   make([]int, pcmBufferFrames*channels),
		Format: &audio.Format{SampleRate: int(decoder.SampleRate), NumChannels: channels},
	}

	var samples []float32
	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return nil, errors.New(fmt.Errorf("error reading PCM data: %w", err)).
				Component(componentAudio).
				Category(errors.CategoryAudio).
				Context("operation", "read_pcm").
				Build()
		}
		if n == 0 {
			break
		}
		samples = appendMono(samples, buf.Data[:n], channels, offset, divisor)
	}

	return Resample(samples, int(decoder.SampleRate), d.SampleRate)
}

// appendMono averages interleaved channels into mono float samples
func appendMono(dst []float32, data []int, channels, offset int, divisor float32) []float32 {
	if channels == 1 {
		for _, s := range data {
			dst = append(dst, float32(s-offset)/divisor)
		}
		return dst
	}

	frames := len(data) / channels
	for f := range frames {
		var sum float32
		for c := range channels {
			sum += float32(data[f*channels+c] - offset)
		}
		dst = append(dst, sum/float32(channels)/divisor)
	}
	return dst
}

// getAudioDivisor returns the scale that maps integer PCM of bitDepth to [-1, 1]
func getAudioDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 8:
		return 128.0, nil
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, errors.Newf("unsupported audio bit depth: %d", bitDepth).
			Component(componentAudio).
			Category(errors.CategoryAudio).
			Build()
	}
}
