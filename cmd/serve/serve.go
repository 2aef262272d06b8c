package serve

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/genrenet-go/internal/analysis"
	"github.com/tphakala/genrenet-go/internal/conf"
)

// Command creates the command that runs the HTTP prediction service.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP prediction service",
		Long:  "Serve POST /predict, GET /health and GET /metrics until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return analysis.Serve(cmd.Context(), settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	flags := cmd.Flags()
	flags.StringVar(&settings.WebServer.Host, "host", viper.GetString("webserver.host"), "Listen address, empty for all interfaces")
	flags.StringVarP(&settings.WebServer.Port, "port", "p", viper.GetString("webserver.port"), "Listen port")
	flags.Float64Var(&settings.WebServer.RateLimit, "ratelimit", viper.GetFloat64("webserver.ratelimit"), "Requests per second per client, 0 disables")
	flags.BoolVar(&settings.Model.Preload, "preload", viper.GetBool("model.preload"), "Load the model at startup")
	flags.BoolVar(&settings.Metrics.Enabled, "metrics", viper.GetBool("metrics.enabled"), "Expose Prometheus metrics on /metrics")

	for key, name := range map[string]string{
		"webserver.host":      "host",
		"webserver.port":      "port",
		"webserver.ratelimit": "ratelimit",
		"model.preload":       "preload",
		"metrics.enabled":     "metrics",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}

	return nil
}
