// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// DefaultRemoteModel is the hosted genre classification model
const DefaultRemoteModel = "dima806/music_genres_classification"

// setDefaultConfig sets default values for every configuration key.
// Durations are strings so the generated config file stays readable.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("webserver.host", "")
	v.SetDefault("webserver.port", "8000")
	v.SetDefault("webserver.bodylimit", "50M")
	v.SetDefault("webserver.readtimeout", "30s")
	v.SetDefault("webserver.writetimeout", "150s")
	v.SetDefault("webserver.ratelimit", 0.0)

	v.SetDefault("model.backend", BackendRemote)
	v.SetDefault("model.name", DefaultRemoteModel)
	v.SetDefault("model.path", "model/genre.tflite")
	v.SetDefault("model.labelpath", "model/labels.txt")
	v.SetDefault("model.samplerate", 16000)
	v.SetDefault("model.overlap", 0.0)
	v.SetDefault("model.threads", 0)
	v.SetDefault("model.usexnnpack", false)
	v.SetDefault("model.applysoftmax", true)
	v.SetDefault("model.retrybackoff", "2s")
	v.SetDefault("model.maxretrybackoff", "1m")
	v.SetDefault("model.preload", true)

	v.SetDefault("remote.endpoint", "https://api-inference.huggingface.co/models")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.tokenfile", "")
	v.SetDefault("remote.timeout", "60s")
	v.SetDefault("remote.maxretries", 3)

	v.SetDefault("audio.ffmpegpath", "")

	v.SetDefault("staging.dir", "")

	v.SetDefault("pipeline.timeout", "2m")

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")

	v.SetDefault("logging.defaultlevel", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.fileoutput.enabled", false)
	v.SetDefault("logging.fileoutput.path", "logs/genrenet.log")
	v.SetDefault("logging.fileoutput.level", "info")
}
