package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/syndicate-project/gateway/cmd/syndicatectl/cmdutil"
	"github.com/syndicate-project/gateway/internal/cli/health"
	"github.com/syndicate-project/gateway/internal/cli/output"
	"github.com/syndicate-project/gateway/internal/cli/timeutil"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show liveness and uptime for a gateway",
	Long: `Query a running syndicate-gateway's /healthz endpoint and report
its liveness, start time, and uptime.

Examples:
  # Check the default local gateway
  syndicatectl status

  # Check a remote gateway
  syndicatectl status --server http://gateway-3:8080`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	var resp health.Response
	if err := cmdutil.GetJSON("/healthz", &resp); err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, resp)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, resp)
	default:
		printStatusTable(resp)
		return nil
	}
}

func printStatusTable(resp health.Response) {
	printer := output.NewPrinter(os.Stdout, output.FormatTable, !cmdutil.IsColorDisabled())

	statusLine := fmt.Sprintf("%s (%s)", resp.Data.Service, resp.Status)
	if resp.Status == "healthy" {
		printer.Success(statusLine)
	} else {
		printer.Error(statusLine)
	}

	pairs := [][2]string{
		{"Started", timeutil.FormatTime(resp.Data.StartedAt)},
		{"Uptime", timeutil.FormatUptime(resp.Data.Uptime)},
	}
	_ = output.SimpleTable(os.Stdout, pairs)
}
