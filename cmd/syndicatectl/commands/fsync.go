package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/syndicate-project/gateway/cmd/syndicatectl/cmdutil"
	"github.com/syndicate-project/gateway/internal/cli/output"
)

var fsyncForce bool

var fsyncCmd = &cobra.Command{
	Use:   "fsync <volume-id> <file-id>",
	Short: "Force an immediate sync of one file's dirty blocks",
	Long: `Force a running syndicate-gateway to sync a file's dirty blocks to the
metadata service immediately, rather than waiting for the background
sync pipeline.

This also drives a coordinator handoff for a file this gateway is not
currently the coordinator for: the normal PREPARE/takeover path runs
exactly as it would for a real write.

Examples:
  syndicatectl fsync 1 42
  syndicatectl fsync --force 1 42`,
	Args: cobra.ExactArgs(2),
	RunE: runFsync,
}

func init() {
	fsyncCmd.Flags().BoolVarP(&fsyncForce, "force", "f", false, "skip the confirmation prompt")
}

func runFsync(cmd *cobra.Command, args []string) error {
	volumeID, fileID := args[0], args[1]

	return cmdutil.RunActionWithConfirmation(
		fmt.Sprintf("Force sync file %s/%s?", volumeID, fileID),
		fsyncForce,
		func() error {
			var result struct {
				Outcome string `json:"outcome"`
			}
			path := fmt.Sprintf("/files/%s/%s/fsync", volumeID, fileID)
			if err := cmdutil.PostJSON(path, &result); err != nil {
				return fmt.Errorf("fsync failed: %w", err)
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
				cmdutil.PrintSuccess(fmt.Sprintf("file %s/%s synced: %s", volumeID, fileID, result.Outcome))
				return nil
			}
		},
	)
}
