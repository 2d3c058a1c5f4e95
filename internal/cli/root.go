package cli

import (
	"github.com/spf13/cobra"
)

// Options carries the flags shared by every subcommand.
type Options struct {
	PipelineFile string
}

func NewRootCmd() *cobra.Command {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:   "fanout",
		Short: "fanout - REST to multi-store ETL runner",
		Long: `fanout runs a single-shot ETL pipeline: it extracts records from a REST
endpoint, shapes them into a typed dataset and fans the dataset out to the
configured sinks (relational database, document store, cloud warehouse).
Connection settings come from the environment; the pipeline file declares
the source, the field mapping and the sink targets.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.PipelineFile, "pipeline", "p", "configs/pipeline.yaml", "Path to the pipeline file")

	rootCmd.AddCommand(NewRunCmd(opts), NewPreviewCmd(opts), NewCheckCmd())

	return rootCmd
}
