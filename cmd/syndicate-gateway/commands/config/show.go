package config

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/syndicate-project/gateway/internal/cli/output"
	"github.com/syndicate-project/gateway/pkg/config"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the loaded configuration",
	Long: `Display syndicate-gateway's configuration after file, environment, and
default-value resolution.

Examples:
  # Show the default config as YAML
  syndicate-gateway config show

  # Show as JSON
  syndicate-gateway config show --output json

  # Show a specific config file
  syndicate-gateway config show --config /etc/syndicate-gateway/config.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, cfg)
	default:
		return output.PrintYAML(os.Stdout, cfg)
	}
}
