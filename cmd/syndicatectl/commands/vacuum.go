package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/syndicate-project/gateway/cmd/syndicatectl/cmdutil"
	"github.com/syndicate-project/gateway/internal/cli/output"
)

var vacuumForce bool

var vacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Trigger an immediate garbage-collection pass",
	Long: `Trigger a running syndicate-gateway's garbage-collection vacuum pass
immediately, rather than waiting for the background vacuumer's own
interval. Useful after a burst of deletes when reclaiming disk quickly
matters more than waiting out the normal cadence.

Examples:
  syndicatectl vacuum
  syndicatectl vacuum --force`,
	RunE: runVacuum,
}

func init() {
	vacuumCmd.Flags().BoolVarP(&vacuumForce, "force", "f", false, "skip the confirmation prompt")
}

func runVacuum(cmd *cobra.Command, args []string) error {
	return cmdutil.RunActionWithConfirmation(
		"Trigger an immediate vacuum pass?",
		vacuumForce,
		func() error {
			var result struct {
				Status string `json:"status"`
			}
			if err := cmdutil.PostJSON("/vacuum", &result); err != nil {
				return fmt.Errorf("vacuum trigger failed: %w", err)
			}

			format, err := cmdutil.GetOutputFormatParsed()
			if err != nil {
				return err
			}
			switch format {
			case output.FormatJSON:
				return output.PrintJSON(os.Stdout, result)
			case output.FormatYAML:
				return output.PrintYAML(os.Stdout, result)
			default:
				cmdutil.PrintSuccess(result.Status)
				return nil
			}
		},
	)
}
