// Package cmdutil provides shared utilities for syndicatectl commands.
package cmdutil

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/syndicate-project/gateway/internal/cli/output"
	"github.com/syndicate-project/gateway/internal/cli/prompt"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ServerURL string
	Output    string
	NoColor   bool
	Verbose   bool
}

// defaultServerURL is used when neither --server nor SYNDICATECTL_SERVER is
// set. The operator HTTP API listens locally unless cfg.HTTPAPI.Port is
// overridden, so this matches a gateway started with defaults.
const defaultServerURL = "http://localhost:8080"

// ServerURL resolves the target gateway's operator HTTP API base URL: the
// --server flag if given, then SYNDICATECTL_SERVER, then the local default.
// Unlike the teacher's own REST client, there is no stored-credential
// context to fall back to: this surface is unauthenticated local/trusted-
// network tooling, not a multi-tenant remote API.
func ServerURL() string {
	if Flags.ServerURL != "" {
		return Flags.ServerURL
	}
	if env := os.Getenv("SYNDICATECTL_SERVER"); env != "" {
		return env
	}
	return defaultServerURL
}

// HTTPClient returns an *http.Client sized for operator requests against a
// single gateway's local or LAN-adjacent HTTP API.
func HTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// GetOutputFormatParsed returns the parsed output format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// IsColorDisabled returns whether color output is disabled.
func IsColorDisabled() bool {
	return Flags.NoColor
}

// IsVerbose returns whether verbose output is enabled.
func IsVerbose() bool {
	return Flags.Verbose
}

// PrintOutput prints data in the specified format. For table format, it
// displays emptyMsg if data is empty, otherwise it renders tableRenderer.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		if isEmpty {
			_, _ = fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, tableRenderer)
	}
}

// PrintSuccess prints a success message if the output format is table.
func PrintSuccess(msg string) {
	format, err := GetOutputFormatParsed()
	if err != nil || format != output.FormatTable {
		return
	}
	printer := output.NewPrinter(os.Stdout, format, !IsColorDisabled())
	printer.Success(msg)
}

// RunActionWithConfirmation prompts for confirmation (unless force is true)
// and runs actionFn, mirroring the teacher's delete-confirmation flow for
// this surface's destructive operator actions (forced fsync, manual vacuum).
func RunActionWithConfirmation(description string, force bool, actionFn func() error) error {
	confirmed, err := prompt.ConfirmWithForce(description, force)
	if err != nil {
		if prompt.IsAborted(err) {
			fmt.Println("\nAborted.")
			return nil
		}
		return err
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}
	return actionFn()
}
