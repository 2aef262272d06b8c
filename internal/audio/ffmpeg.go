package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tphakala/genrenet-go/internal/errors"
)

// maxStderrLen bounds the ffmpeg stderr kept in error context
const maxStderrLen = 512

// ffmpegDecodeArgs returns arguments that decode input to raw mono float32 on stdout
func ffmpegDecodeArgs(input string, sampleRate int) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-i", input,
		"-vn",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"pipe:1",
	}
}

func (d *Decoder) decodeFFmpeg(ctx context.Context, path string) ([]float32, error) {
	if d.FfmpegPath == "" {
		return nil, errors.Newf("ffmpeg is required to decode %s files but was not found", strings.ToLower(extOf(path))).
			Component(componentAudio).
			Category(errors.CategoryCommandExecution).
			Context("operation", "find_ffmpeg").
			Build()
	}

	cmd := exec.CommandContext(ctx, d.FfmpegPath, ffmpegDecodeArgs(path, d.SampleRate)...) //nolint:gosec // binary path comes from config
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.New(ctxErr).
				Component(componentAudio).
				Category(errors.CategoryCancellation).
				Context("operation", "ffmpeg_decode").
				Build()
		}
		return nil, errors.New(err).
			Component(componentAudio).
			Category(errors.CategoryCommandExecution).
			Context("operation", "ffmpeg_decode").
			Context("stderr", truncate(strings.TrimSpace(stderr.String()), maxStderrLen)).
			FileContext(path, 0).
			Build()
	}

	return bytesToFloat32(stdout.Bytes()), nil
}

// bytesToFloat32 converts little endian f32 PCM to samples, dropping a trailing partial sample
func bytesToFloat32(data []byte) []float32 {
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func extOf(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i:]
	}
	return ""
}
