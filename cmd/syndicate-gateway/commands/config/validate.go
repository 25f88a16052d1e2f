package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syndicate-project/gateway/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate the syndicate-gateway configuration file.

Checks for syntax errors, missing required fields, and invalid values, then
prints a short summary.

Examples:
  # Validate the default config
  syndicate-gateway config validate

  # Validate a specific config file
  syndicate-gateway config validate --config /etc/syndicate-gateway/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if cfg.Identity.VolumePublicKeyFile == "" {
		warnings = append(warnings, "identity.volume_public_key_file not configured - manifest and certificate signatures cannot be verified")
	}
	if cfg.Cache.HardLimit == 0 {
		warnings = append(warnings, "cache.hard_limit not configured - the block cache can grow unbounded")
	}
	if cfg.Replication.S3.Enabled && cfg.Replication.S3.Bucket == "" {
		warnings = append(warnings, "replication.s3.enabled is true but replication.s3.bucket is empty")
	}

	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Gateway type:     %s\n", cfg.Identity.GatewayType)
	fmt.Printf("  Gateway ID:       %d\n", cfg.Identity.GatewayID)
	fmt.Printf("  Volume:           %s (%d)\n", cfg.Identity.VolumeName, cfg.Identity.VolumeID)
	fmt.Printf("  MS URL:           %s\n", cfg.Identity.MSURL)
	fmt.Printf("  View store:       %s\n", cfg.ViewStore.Driver)
	fmt.Printf("  Log level:        %s\n", cfg.Logging.Level)

	return nil
}
