package commands

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/syndicate-project/gateway/cmd/syndicatectl/cmdutil"
)

var schemaOutput string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Fetch the gateway's wire-message JSON schema",
	Long: `Fetch the JSON Schema document a running syndicate-gateway serves at
/schema, describing every MS, coordinator, and manifest wire message.

Examples:
  # Print to stdout
  syndicatectl schema

  # Save to a file
  syndicatectl schema --file wire.schema.json`,
	RunE: runSchema,
}

func init() {
	// No shorthand: -o is already the root's persistent --output (format) flag.
	schemaCmd.Flags().StringVar(&schemaOutput, "file", "", "output file (default: stdout)")
}

func runSchema(cmd *cobra.Command, args []string) error {
	url := cmdutil.ServerURL() + "/schema"
	resp, err := cmdutil.HTTPClient().Get(url)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	if schemaOutput != "" {
		if err := os.WriteFile(schemaOutput, body, 0644); err != nil {
			return fmt.Errorf("failed to write schema file: %w", err)
		}
		cmd.Printf("Schema written to %s\n", schemaOutput)
		return nil
	}

	cmd.Println(string(body))
	return nil
}
