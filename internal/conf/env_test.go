package conf

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvValidators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		validate func(string) error
		value    string
		wantErr  bool
	}{
		{"bool true", validateEnvBool, "true", false},
		{"bool with spaces", validateEnvBool, " 1 ", false},
		{"bool yes", validateEnvBool, "yes", true},
		{"port ok", validateEnvPort, "8000", false},
		{"port zero", validateEnvPort, "0", true},
		{"port text", validateEnvPort, "http", true},
		{"backend tflite", validateEnvBackend, "tflite", false},
		{"backend remote", validateEnvBackend, "remote", false},
		{"backend onnx", validateEnvBackend, "onnx", true},
		{"sample rate ok", validateEnvSampleRate, "16000", false},
		{"sample rate too high", validateEnvSampleRate, "192000", true},
		{"overlap ok", validateEnvNonNegativeFloat, "0.5", false},
		{"overlap negative", validateEnvNonNegativeFloat, "-1", true},
		{"threads ok", validateEnvThreads, "4", false},
		{"threads negative", validateEnvThreads, "-1", true},
		{"duration ok", validateEnvDuration, "90s", false},
		{"duration bare number", validateEnvDuration, "90", true},
		{"duration negative", validateEnvDuration, "-1s", true},
		{"url https", validateEnvURL, "https://api-inference.huggingface.co/models", false},
		{"url no scheme", validateEnvURL, "api.example.com", true},
		{"url no host", validateEnvURL, "https://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.validate(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBindEnvVarsReportsInvalidValues(t *testing.T) {
	t.Setenv("GENRENET_MODEL_THREADS", "many")
	t.Setenv("GENRENET_WEBSERVER_PORT", "8080")

	v := viper.New()
	err := configureEnvironmentVariables(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GENRENET_MODEL_THREADS")
	assert.NotContains(t, err.Error(), "GENRENET_WEBSERVER_PORT")
	assert.Equal(t, "8080", v.GetString("webserver.port"))
}
