// Package cmd builds the genrenet command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/genrenet-go/cmd/classify"
	"github.com/tphakala/genrenet-go/cmd/serve"
	"github.com/tphakala/genrenet-go/internal/buildinfo"
	"github.com/tphakala/genrenet-go/internal/conf"
	"github.com/tphakala/genrenet-go/internal/logger"
	"github.com/tphakala/genrenet-go/internal/telemetry"
)

// RootCommand creates and returns the root command. Running it without a
// subcommand starts the HTTP service.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "genrenet",
		Short:         "GenreNet-Go audio genre classifier",
		Long:          "Classify the music genre of audio files over HTTP or from the command line.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	serveCmd := serve.Command(settings)
	classifyCmd := classify.Command(settings)
	versionCmd := versionCommand(build)

	rootCmd.AddCommand(serveCmd, classifyCmd, versionCmd)
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
	rootCmd.RunE = serveCmd.RunE

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		// classify prints JSON to stdout; keep routine logs out of it
		if cmd.Name() == classifyCmd.Name() && !settings.Debug {
			quietConsole(settings)
		}
		return initialize(settings)
	}

	return rootCmd
}

// initialize sets up logging and telemetry once flags have been applied.
func initialize(settings *conf.Settings) error {
	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}

	centralLogger, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("error initializing logger: %w", err)
	}
	logger.SetGlobal(centralLogger)

	if err := telemetry.InitSentry(settings); err != nil {
		// telemetry must never stop the service
		logger.Global().Module("main").Warn("sentry initialization failed", logger.Error(err))
	}
	return nil
}

func quietConsole(settings *conf.Settings) {
	if settings.Logging.Console == nil {
		settings.Logging.Console = &logger.ConsoleOutput{Enabled: true}
	}
	settings.Logging.Console.Level = string(logger.LogLevelWarn)
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	flags.StringVar(&settings.Model.Backend, "backend", viper.GetString("model.backend"), "Model backend: tflite or remote")
	flags.StringVar(&settings.Model.Path, "model", viper.GetString("model.path"), "Path to the TensorFlow Lite model file")
	flags.StringVar(&settings.Model.LabelPath, "labels", viper.GetString("model.labelpath"), "Path to the label file")
	flags.StringVar(&settings.Model.Name, "model-name", viper.GetString("model.name"), "Model identifier used by the remote backend")
	flags.IntVar(&settings.Model.Threads, "threads", viper.GetInt("model.threads"), "Interpreter threads, 0 for automatic")
	flags.Float64Var(&settings.Model.Overlap, "overlap", viper.GetFloat64("model.overlap"), "Overlap between analysis windows in seconds")

	for key, name := range map[string]string{
		"debug":           "debug",
		"model.backend":   "backend",
		"model.path":      "model",
		"model.labelpath": "labels",
		"model.name":      "model-name",
		"model.threads":   "threads",
		"model.overlap":   "overlap",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}

	return nil
}

func versionCommand(build *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), build.String())
		},
	}
}
