package commands

import (
	"github.com/EliSopMes/immersive-server/internal/serviceinterfaces"

	"github.com/spf13/cobra"
)

// QuotaCommands returns the quota inspection commands
func QuotaCommands(ledger serviceinterfaces.QuotaLedger) *cobra.Command {
	quotaCmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect daily quota usage",
	}

	quotaCmd.AddCommand(&cobra.Command{
		Use:   "show <identity>",
		Short: "Show today's usage and ceilings for an identity",
		Long: `Show today's usage and ceilings for an identity.

Anonymous callers are recorded as ip:<address>.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ledger.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), status)
		},
	})

	return quotaCmd
}
