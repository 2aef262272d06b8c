package classify

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/genrenet-go/internal/analysis"
	"github.com/tphakala/genrenet-go/internal/conf"
)

// Command creates the command that classifies a single local audio file.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [input.wav|mp3|mp4|m4a]",
		Short: "Classify the genre of an audio file",
		Long:  "Run one audio file through the prediction pipeline and print the result as JSON.",
		Args:  cobra.ExactArgs(1), // the command expects exactly one argument
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.FileAnalysis(cmd.Context(), settings, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&settings.Staging.Dir, "staging", settings.Staging.Dir, "Scratch directory for the staged copy")

	return cmd
}
