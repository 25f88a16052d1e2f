package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/syndicate-project/gateway/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Write a sample syndicate-gateway configuration file with the built-in
defaults and empty identity fields the operator must fill in (gateway/volume
IDs, key file paths, the MS URL) before the gateway can start.

By default the file is written to $XDG_CONFIG_HOME/syndicate-gateway/config.yaml.
Use --config to pick a custom path.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
	}

	cfg := config.GetDefaultConfig()
	if err := config.SaveConfig(cfg, path); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Fill in identity.gateway_id, identity.volume_id, identity.ms_url,")
	fmt.Println("     and the key/session-password file paths")
	fmt.Println("  2. Start the gateway with: syndicate-gateway start")
	fmt.Printf("  3. Or specify a custom config: syndicate-gateway start --config %s\n", path)

	return nil
}
