package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/syndicate-project/gateway/cmd/syndicatectl/cmdutil"
	"github.com/syndicate-project/gateway/internal/cli/output"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache, replication, and metadata-service stats for a gateway",
	Long: `Query a running syndicate-gateway's /stats endpoint and report cache
occupancy, replica queue depth, pending vacuum entries, and metadata
service round-trip timings.

Examples:
  syndicatectl stats
  syndicatectl stats -o json`,
	RunE: runStats,
}

// gatewayStats mirrors pkg/httpapi's statsResponse wire shape; it is kept
// independent of that unexported type so this command only depends on the
// JSON contract, not an internal package.
type gatewayStats struct {
	Cache struct {
		BlocksHeld int   `json:"blocks_held"`
		SoftLimit  int   `json:"soft_limit"`
		HardLimit  int   `json:"hard_limit"`
		Written    int64 `json:"written"`
	} `json:"cache"`
	Replication struct {
		Pending       int `json:"pending"`
		Completed     int `json:"completed"`
		Failed        int `json:"failed"`
		VacuumPending int `json:"vacuum_pending"`
	} `json:"replication"`
	MS struct {
		VolumeMS  float64 `json:"volume_ms"`
		GatewayMS float64 `json:"gateway_ms"`
		TotalMS   float64 `json:"total_ms"`
		ResolveMS float64 `json:"resolve_ms"`
	} `json:"ms"`
	RegisteredFiles int `json:"registered_files"`
}

// Headers implements output.TableRenderer.
func (s gatewayStats) Headers() []string {
	return []string{"Metric", "Value"}
}

// Rows implements output.TableRenderer.
func (s gatewayStats) Rows() [][]string {
	return [][]string{
		{"cache.blocks_held", fmt.Sprintf("%d", s.Cache.BlocksHeld)},
		{"cache.soft_limit", fmt.Sprintf("%d", s.Cache.SoftLimit)},
		{"cache.hard_limit", fmt.Sprintf("%d", s.Cache.HardLimit)},
		{"cache.written", fmt.Sprintf("%d", s.Cache.Written)},
		{"replication.pending", fmt.Sprintf("%d", s.Replication.Pending)},
		{"replication.completed", fmt.Sprintf("%d", s.Replication.Completed)},
		{"replication.failed", fmt.Sprintf("%d", s.Replication.Failed)},
		{"replication.vacuum_pending", fmt.Sprintf("%d", s.Replication.VacuumPending)},
		{"ms.volume_ms", fmt.Sprintf("%.2f", s.MS.VolumeMS)},
		{"ms.gateway_ms", fmt.Sprintf("%.2f", s.MS.GatewayMS)},
		{"ms.total_ms", fmt.Sprintf("%.2f", s.MS.TotalMS)},
		{"ms.resolve_ms", fmt.Sprintf("%.2f", s.MS.ResolveMS)},
		{"registered_files", fmt.Sprintf("%d", s.RegisteredFiles)},
	}
}

func runStats(cmd *cobra.Command, args []string) error {
	var stats gatewayStats
	if err := cmdutil.GetJSON("/stats", &stats); err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, stats, false, "", stats)
}
