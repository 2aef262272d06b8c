// Package conf provides configuration management for genrenet-go.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/genrenet-go/internal/errors"
	"github.com/tphakala/genrenet-go/internal/logger"
	"github.com/tphakala/genrenet-go/internal/secrets"
)

const (
	// BackendTFLite runs a TensorFlow Lite model in process
	BackendTFLite = "tflite"
	// BackendRemote calls a hosted inference API
	BackendRemote = "remote"

	configFileName = "config.yaml"
)

// WebServerSettings contains HTTP server settings
type WebServerSettings struct {
	Host         string        // listen address, empty for all interfaces
	Port         string        // listen port
	BodyLimit    string        // maximum request body, e.g. "50M"
	ReadTimeout  time.Duration // http.Server read timeout
	WriteTimeout time.Duration // http.Server write timeout
	RateLimit    float64       // requests per second per client, 0 disables

	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For is
	// believed. Empty means the client is the TCP peer.
	TrustedProxies []string
}

// ModelSettings contains classifier settings
type ModelSettings struct {
	Backend         string        // tflite or remote
	Name            string        // model identifier reported in logs and used by the remote backend
	Path            string        // path to the .tflite model file
	LabelPath       string        // path to the label file, one label per line
	SampleRate      int           // sample rate the model expects
	Overlap         float64       // overlap between analysis windows in seconds
	Threads         int           // interpreter threads, 0 for automatic
	UseXNNPACK      bool          // use the XNNPACK delegate
	ApplySoftmax    bool          // convert model logits to probabilities
	RetryBackoff    time.Duration // wait after a failed load before retrying, 0 disables
	MaxRetryBackoff time.Duration // upper bound for the doubling backoff
	Preload         bool          // load the model at startup
}

// RemoteSettings contains hosted inference API settings
type RemoteSettings struct {
	Endpoint   string        // base URL, model name is appended
	Token      string        // bearer token, ${VAR} references are expanded
	TokenFile  string        // file holding the token, takes precedence over Token
	Timeout    time.Duration // per request timeout
	MaxRetries int           // retries on 5xx and model-loading responses
}

// AudioSettings contains audio decoding settings
type AudioSettings struct {
	FfmpegPath string // explicit ffmpeg binary, empty to search PATH
}

// StagingSettings contains upload staging settings
type StagingSettings struct {
	Dir string // scratch directory, empty for the OS temp dir
}

// PipelineSettings contains request pipeline settings
type PipelineSettings struct {
	Timeout time.Duration // upper bound for one prediction request
}

// MetricsSettings contains Prometheus settings
type MetricsSettings struct {
	Enabled bool
}

// SentrySettings contains error telemetry settings
type SentrySettings struct {
	Enabled bool
	DSN     string
}

// Settings contains all configuration options
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-"`
	BuildDate string `yaml:"-"`

	WebServer WebServerSettings
	Model     ModelSettings
	Remote    RemoteSettings
	Audio     AudioSettings
	Staging   StagingSettings
	Pipeline  PipelineSettings
	Metrics   MetricsSettings
	Sentry    SentrySettings
	Logging   logger.LoggingConfig
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file, environment and defaults into Settings.
// A default config file is written to the first search path when none exists.
func Load() (*Settings, error) {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return nil, err
	}

	settings, err := load(viper.GetViper(), configPaths)
	if err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// load does the work of Load against an explicit viper instance and search path list.
func load(v *viper.Viper, configPaths []string) (*Settings, error) {
	if err := initViper(v, configPaths); err != nil {
		return nil, errors.New(fmt.Errorf("error initializing config: %w", err)).
			Category(errors.CategoryConfiguration).
			Context("operation", "init_viper").
			Build()
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error resolving secrets: %w", err)).
			Category(errors.CategoryConfiguration).
			Context("operation", "resolve_secrets").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error validating settings: %w", err)).
			Category(errors.CategoryConfiguration).
			Context("operation", "validate_config").
			Build()
	}

	return settings, nil
}

func initViper(v *viper.Viper, configPaths []string) error {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	setDefaultConfig(v)

	if err := configureEnvironmentVariables(v); err != nil {
		// bad env values are reported but the validated settings decide
		GetLogger().Warn("environment variable issues", logger.Error(err))
	}

	err := v.ReadInConfig()
	if err == nil {
		GetLogger().Debug("config file loaded", logger.String("path", v.ConfigFileUsed()))
		return nil
	}

	var configFileNotFoundError viper.ConfigFileNotFoundError
	if !errors.As(err, &configFileNotFoundError) {
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	if len(configPaths) == 0 {
		return nil
	}

	configPath := filepath.Join(configPaths[0], configFileName)
	if err := createDefaultConfig(configPath); err != nil {
		// running without a file is fine, defaults and env still apply
		GetLogger().Warn("could not write default config file",
			logger.String("path", configPath),
			logger.Error(err))
		return nil
	}
	GetLogger().Info("created default config file", logger.String("path", configPath))
	return v.ReadInConfig()
}

// resolveSecrets replaces credential settings with their resolved values.
func resolveSecrets(settings *Settings) error {
	token, err := secrets.Resolve(settings.Remote.TokenFile, settings.Remote.Token)
	if err != nil {
		return fmt.Errorf("remote token: %w", err)
	}
	settings.Remote.Token = token

	dsn, err := secrets.ExpandString(settings.Sentry.DSN)
	if err != nil {
		return fmt.Errorf("sentry dsn: %w", err)
	}
	settings.Sentry.DSN = dsn
	return nil
}

// defaultConfigHeader is written above the generated defaults.
const defaultConfigHeader = `# GenreNet-Go configuration
#
# model.backend selects the classifier:
#   remote  calls the hosted model named by model.name (default
#           dima806/music_genres_classification) at remote.endpoint. Set
#           remote.token or remote.tokenfile when the endpoint requires a token.
#   tflite  runs a TensorFlow Lite model in process. The model file
#           (model.path) and its label file (model.labelpath, one label per
#           line in output order) are not bundled and must be provided.
#
# Behind a reverse proxy, list its addresses under webserver.trustedproxies
# (IPs or CIDRs) so rate limiting and logs see the real client address.
#
`

// createDefaultConfig writes the built-in defaults to configPath as YAML.
func createDefaultConfig(configPath string) error {
	defaults := viper.New()
	setDefaultConfig(defaults)

	data, err := yaml.Marshal(defaults.AllSettings())
	if err != nil {
		return fmt.Errorf("error encoding default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	data = append([]byte(defaultConfigHeader), data...)
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}
	return nil
}

// GetSettings returns the settings loaded by Load, or nil before Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
