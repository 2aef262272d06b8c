package genrenet

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/tphakala/genrenet-go/internal/audio"
	"github.com/tphakala/genrenet-go/internal/cpuspec"
	"github.com/tphakala/genrenet-go/internal/errors"
	"github.com/tphakala/genrenet-go/internal/logger"
	"github.com/tphakala/genrenet-go/internal/observability/metrics"
)

// TFLiteConfig configures the in-process TensorFlow Lite backend.
type TFLiteConfig struct {
	ModelPath    string
	LabelPath    string
	SampleRate   int
	Overlap      float64 // seconds of overlap between analysis windows
	Threads      int     // 0 selects a count from the CPU topology
	UseXNNPACK   bool
	ApplySoftmax bool
	Decoder      *audio.Decoder
	Metrics      *metrics.GenreNetMetrics
}

// tfliteClassifier runs a single interpreter. Interpreter access is
// serialized; decoding and windowing run outside the lock.
type tfliteClassifier struct {
	mu          sync.Mutex
	interpreter *tflite.Interpreter

	labels       []string
	windowLen    int
	step         int
	applySoftmax bool
	decoder      *audio.Decoder
	metrics      *metrics.GenreNetMetrics
}

// NewTFLiteLoader returns a Loader that builds the TensorFlow Lite classifier.
func NewTFLiteLoader(cfg TFLiteConfig) Loader {
	return func(ctx context.Context) (Classifier, error) {
		return loadTFLite(ctx, &cfg)
	}
}

func loadTFLite(ctx context.Context, cfg *TFLiteConfig) (*tfliteClassifier, error) {
	start := time.Now()
	log := GetLogger()

	if cfg.Decoder == nil {
		cfg.Decoder = audio.NewDecoder(cfg.SampleRate, "")
	}

	labels, err := loadLabels(cfg.LabelPath)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	modelData, err := os.ReadFile(cfg.ModelPath)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to read model file: %w", err)).
			Component(componentGenreNet).
			Category(errors.CategoryModelLoad).
			Context("model_path", cfg.ModelPath).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return nil, errors.Newf("cannot load TensorFlow Lite model").
			Component(componentGenreNet).
			Category(errors.CategoryModelLoad).
			Context("model_path", cfg.ModelPath).
			Context("model_size_kb", len(modelData)/1024).
			Build()
	}

	threads := cpuspec.ThreadCount(cfg.Threads)
	options := tflite.NewInterpreterOptions()
	if cfg.UseXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // G115: bounded by CPU count
		if delegate == nil {
			log.Warn("failed to create XNNPACK delegate, falling back to default CPU")
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		return nil, errors.Newf("cannot create interpreter").
			Component(componentGenreNet).
			Category(errors.CategoryModelLoad).
			Context("model_path", cfg.ModelPath).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		return nil, errors.Newf("tensor allocation failed: %v", status).
			Component(componentGenreNet).
			Category(errors.CategoryModelLoad).
			Context("model_path", cfg.ModelPath).
			Build()
	}

	c := &tfliteClassifier{
		interpreter:  interpreter,
		labels:       labels,
		applySoftmax: cfg.ApplySoftmax,
		decoder:      cfg.Decoder,
		metrics:      cfg.Metrics,
	}
	if err := c.inspectTensors(cfg); err != nil {
		interpreter.Delete()
		return nil, err
	}

	// the interpreter holds its own copy of the model
	runtime.GC()

	log.Info("TFLite model initialized",
		logger.String("model_path", cfg.ModelPath),
		logger.Int("labels", len(labels)),
		logger.Int("window_samples", c.windowLen),
		logger.Int("threads", threads),
		logger.Bool("xnnpack", cfg.UseXNNPACK),
		logger.Duration("duration", time.Since(start)))
	return c, nil
}

// inspectTensors reads the window length from the input tensor and checks
// the output width against the label count.
func (c *tfliteClassifier) inspectTensors(cfg *TFLiteConfig) error {
	input := c.interpreter.GetInputTensor(0)
	if input == nil || input.NumDims() == 0 {
		return errors.Newf("cannot get input tensor from model").
			Component(componentGenreNet).
			Category(errors.CategoryModelLoad).
			Context("model_path", cfg.ModelPath).
			Build()
	}
	if len(input.Float32s()) == 0 {
		return errors.Newf("model input tensor is not float32").
			Component(componentGenreNet).
			Category(errors.CategoryModelLoad).
			Context("model_path", cfg.ModelPath).
			Build()
	}
	c.windowLen = input.Dim(input.NumDims() - 1)
	c.step = audio.StepSamples(c.windowLen, cfg.SampleRate, cfg.Overlap)

	output := c.interpreter.GetOutputTensor(0)
	if output == nil || output.NumDims() == 0 {
		return errors.Newf("cannot get output tensor from model").
			Component(componentGenreNet).
			Category(errors.CategoryModelLoad).
			Context("model_path", cfg.ModelPath).
			Build()
	}
	if classes := output.Dim(output.NumDims() - 1); classes != len(c.labels) {
		return errors.Newf("label count mismatch: model expects %d classes but label file has %d labels",
			classes, len(c.labels)).
			Component(componentGenreNet).
			Category(errors.CategoryLabelLoad).
			Context("model_path", cfg.ModelPath).
			Context("label_path", cfg.LabelPath).
			Context("expected_labels", classes).
			Context("actual_labels", len(c.labels)).
			Build()
	}
	return nil
}

// Classify decodes path, scores every analysis window and averages the
// scores across windows.
func (c *tfliteClassifier) Classify(ctx context.Context, path string) ([]Prediction, error) {
	samples, err := c.decoder.Decode(ctx, path)
	if err != nil {
		return nil, err
	}

	windows := audio.Split(samples, c.windowLen, c.step)
	if len(windows) == 0 {
		return nil, errors.Newf("audio file contains no samples").
			Component(componentGenreNet).
			Category(errors.CategoryAudioAnalysis).
			Build()
	}

	sums := make([]float64, len(c.labels))
	for _, window := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scores, err := c.predict(window)
		if err != nil {
			return nil, err
		}
		for i, s := range scores {
			sums[i] += s
		}
	}

	predictions := make([]Prediction, len(c.labels))
	for i, label := range c.labels {
		predictions[i] = Prediction{
			Label: label,
			Score: clamp01(sums[i] / float64(len(windows))),
		}
	}
	return predictions, nil
}

func (c *tfliteClassifier) predict(window []float32) ([]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.interpreter == nil {
		return nil, errors.Newf("classifier is closed").
			Component(componentGenreNet).
			Category(errors.CategoryState).
			Build()
	}

	input := c.interpreter.GetInputTensor(0)
	copy(input.Float32s(), window)

	if status := c.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf("tensor invoke failed: %v", status).
			Component(componentGenreNet).
			Category(errors.CategoryAudioAnalysis).
			Build()
	}
	c.metrics.RecordModelInvoke()

	raw := c.interpreter.GetOutputTensor(0).Float32s()
	scores := make([]float64, len(c.labels))
	for i := range scores {
		scores[i] = float64(raw[i])
	}
	if c.applySoftmax {
		softmax(scores)
	}
	return scores, nil
}

// Close deletes the interpreter. Safe to call more than once.
func (c *tfliteClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.interpreter != nil {
		c.interpreter.Delete()
		c.interpreter = nil
	}
	return nil
}
