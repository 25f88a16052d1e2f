package cmdutil

import (
	"bytes"
	"os"
	"testing"

	"github.com/syndicate-project/gateway/internal/cli/output"
)

type testTableRenderer struct {
	headers []string
	rows    [][]string
}

func (t testTableRenderer) Headers() []string { return t.headers }
func (t testTableRenderer) Rows() [][]string  { return t.rows }

func TestServerURL(t *testing.T) {
	orig := Flags.ServerURL
	defer func() { Flags.ServerURL = orig }()

	Flags.ServerURL = ""
	_ = os.Unsetenv("SYNDICATECTL_SERVER")
	if got := ServerURL(); got != defaultServerURL {
		t.Errorf("ServerURL() = %q, want %q", got, defaultServerURL)
	}

	_ = os.Setenv("SYNDICATECTL_SERVER", "http://gateway-3:9090")
	defer func() { _ = os.Unsetenv("SYNDICATECTL_SERVER") }()
	if got := ServerURL(); got != "http://gateway-3:9090" {
		t.Errorf("ServerURL() = %q, want env override", got)
	}

	Flags.ServerURL = "http://explicit:8080"
	if got := ServerURL(); got != "http://explicit:8080" {
		t.Errorf("ServerURL() = %q, want explicit flag to win", got)
	}
}

func TestGetOutputFormatParsed(t *testing.T) {
	defer func() { Flags.Output = "" }()

	tests := []struct {
		flagValue string
		expected  output.Format
		wantErr   bool
	}{
		{"table", output.FormatTable, false},
		{"json", output.FormatJSON, false},
		{"yaml", output.FormatYAML, false},
		{"invalid", output.FormatTable, true},
	}

	for _, tt := range tests {
		t.Run(tt.flagValue, func(t *testing.T) {
			Flags.Output = tt.flagValue
			result, err := GetOutputFormatParsed()
			if (err != nil) != tt.wantErr {
				t.Errorf("GetOutputFormatParsed() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && result != tt.expected {
				t.Errorf("GetOutputFormatParsed() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestPrintOutput_Table_Empty(t *testing.T) {
	defer func() { Flags.Output = "" }()
	Flags.Output = "table"

	var buf bytes.Buffer
	renderer := testTableRenderer{headers: []string{"NAME"}}

	if err := PrintOutput(&buf, []string{}, true, "No items found.", renderer); err != nil {
		t.Fatalf("PrintOutput() error = %v", err)
	}
	if buf.String() != "No items found.\n" {
		t.Errorf("PrintOutput() = %q, want empty message", buf.String())
	}
}

func TestPrintOutput_JSON(t *testing.T) {
	defer func() { Flags.Output = "" }()
	Flags.Output = "json"

	var buf bytes.Buffer
	renderer := testTableRenderer{headers: []string{"NAME"}, rows: [][]string{{"foo"}}}

	if err := PrintOutput(&buf, []string{"foo"}, false, "", renderer); err != nil {
		t.Fatalf("PrintOutput() error = %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("foo")) {
		t.Errorf("PrintOutput() = %q, missing expected data", buf.String())
	}
}

func TestIsColorDisabled(t *testing.T) {
	defer func() { Flags.NoColor = false }()

	Flags.NoColor = true
	if !IsColorDisabled() {
		t.Error("IsColorDisabled() = false, want true")
	}
	Flags.NoColor = false
	if IsColorDisabled() {
		t.Error("IsColorDisabled() = true, want false")
	}
}
