package audio

// Split cuts samples into windows of windowLen advancing by step. The tail is
// zero padded into a final window when it holds at least half a window. Input
// shorter than one window always yields a single padded window so short clips
// are still classified. Empty input yields no windows.
func Split(samples []float32, windowLen, step int) [][]float32 {
	if windowLen <= 0 || len(samples) == 0 {
		return nil
	}
	if step <= 0 || step > windowLen {
		step = windowLen
	}

	if len(samples) <= windowLen {
		return [][]float32{padWindow(samples, windowLen)}
	}

	var windows [][]float32
	start := 0
	for ; start+windowLen <= len(samples); start += step {
		windows = append(windows, samples[start:start+windowLen])
	}

	// the previous window already covered up to start-step+windowLen
	covered := start - step + windowLen
	if tail := len(samples) - start; tail > 0 && covered < len(samples) && tail*2 >= windowLen {
		windows = append(windows, padWindow(samples[start:], windowLen))
	}
	return windows
}

// StepSamples converts a window length and overlap in seconds to a step in samples.
func StepSamples(windowLen, sampleRate int, overlapSeconds float64) int {
	step := windowLen - int(overlapSeconds*float64(sampleRate))
	if step <= 0 || step > windowLen {
		return windowLen
	}
	return step
}

func padWindow(samples []float32, windowLen int) []float32 {
	if len(samples) == windowLen {
		return samples
	}
	window := make([]float32, windowLen)
	copy(window, samples)
	return window
}
