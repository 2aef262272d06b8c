// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. GENRENET_MODEL_PATH
const EnvPrefix = "GENRENET"

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // viper config key
	EnvVar    string             // environment variable name
	Validate  func(string) error // optional validation function
}

// getEnvBindings returns the environment variables that get value validation.
// All other keys are still reachable through AutomaticEnv.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "GENRENET_DEBUG", validateEnvBool},

		{"webserver.port", "GENRENET_WEBSERVER_PORT", validateEnvPort},
		{"webserver.ratelimit", "GENRENET_WEBSERVER_RATELIMIT", validateEnvNonNegativeFloat},

		{"model.backend", "GENRENET_MODEL_BACKEND", validateEnvBackend},
		{"model.path", "GENRENET_MODEL_PATH", nil},
		{"model.labelpath", "GENRENET_MODEL_LABELPATH", nil},
		{"model.samplerate", "GENRENET_MODEL_SAMPLERATE", validateEnvSampleRate},
		{"model.overlap", "GENRENET_MODEL_OVERLAP", validateEnvNonNegativeFloat},
		{"model.threads", "GENRENET_MODEL_THREADS", validateEnvThreads},
		{"model.usexnnpack", "GENRENET_MODEL_USEXNNPACK", validateEnvBool},
		{"model.retrybackoff", "GENRENET_MODEL_RETRYBACKOFF", validateEnvDuration},

		{"remote.endpoint", "GENRENET_REMOTE_ENDPOINT", validateEnvURL},
		{"remote.token", "GENRENET_REMOTE_TOKEN", nil},
		{"remote.tokenfile", "GENRENET_REMOTE_TOKENFILE", nil},
		{"remote.timeout", "GENRENET_REMOTE_TIMEOUT", validateEnvDuration},

		{"pipeline.timeout", "GENRENET_PIPELINE_TIMEOUT", validateEnvDuration},
		{"sentry.dsn", "GENRENET_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for viper
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return bindEnvVars(v)
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvBackend(value string) error {
	valid := []string{BackendTFLite, BackendRemote}
	if !slices.Contains(valid, strings.TrimSpace(value)) {
		return fmt.Errorf("must be one of: %s", strings.Join(valid, ", "))
	}
	return nil
}

func validateEnvSampleRate(value string) error {
	rate, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid sample rate: %w", err)
	}
	if rate < minSampleRate || rate > maxSampleRate {
		return fmt.Errorf("sample rate must be between %d and %d, got %d", minSampleRate, maxSampleRate, rate)
	}
	return nil
}

func validateEnvNonNegativeFloat(value string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("invalid number: %w", err)
	}
	if f < 0 {
		return fmt.Errorf("must be non-negative, got %g", f)
	}
	return nil
}

func validateEnvThreads(value string) error {
	threads, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid threads: %w", err)
	}
	if threads < 0 {
		return fmt.Errorf("threads must be non-negative, got %d", threads)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("duration must be non-negative, got %s", d)
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}
