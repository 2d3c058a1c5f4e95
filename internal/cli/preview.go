package cli

import (
	"github.com/spf13/cobra"
)

func NewPreviewCmd(opts *Options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Extract and transform only, print the first rows",
		Long: `Preview runs the extract and transform stages and prints the leading rows
of the resulting dataset as JSON lines, one object per row. No sink is
touched, so it is safe to iterate on the field mapping against a live API.`,
		RunE: func(c *cobra.Command, args []string) error {
			return previewPipeline(c.Context(), opts.PipelineFile, limit, c.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&limit, "rows", "n", 10, "Maximum number of rows to print")

	return cmd
}
