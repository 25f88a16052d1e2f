// Package config implements syndicate-gateway's configuration management
// subcommands.
package config

import (
	"github.com/spf13/cobra"
)

// Cmd is the config subcommand.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Inspect and validate syndicate-gateway configuration files.

Use 'syndicate-gateway init' to create a new configuration file.

Subcommands:
  show      Display the loaded configuration
  validate  Validate a configuration file
  schema    Generate a JSON schema for IDE/validation tooling`,
}

func init() {
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(schemaCmd)
}
