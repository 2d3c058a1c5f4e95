package cli

import (
	"github.com/spf13/cobra"
)

func NewRunCmd(opts *Options) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline run",
		Long: `Run extracts from the source, transforms the records and loads the dataset
into every sink the pipeline declares. The JSON run summary is printed to
stdout. The command fails only when extraction or transformation failed, or
when every sink failed; partial sink failure is reported but still succeeds.`,
		RunE: func(c *cobra.Command, args []string) error {
			return runPipeline(c.Context(), opts.PipelineFile, dryRun, c.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Extract and transform only, skip all sinks")

	return cmd
}
