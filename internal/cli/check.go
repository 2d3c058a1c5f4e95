package cli

import (
	"github.com/spf13/cobra"
)

func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify every configured store is reachable",
		Long: `Check opens, pings and closes a connection to each store configured in the
environment and reports the result per store. It fails when any store is
unreachable.`,
		RunE: func(c *cobra.Command, args []string) error {
			return checkConnections(c.Context(), c.OutOrStdout())
		},
	}

	return cmd
}
