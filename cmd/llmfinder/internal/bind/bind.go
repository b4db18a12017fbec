// Package bind provides centralized flag-to-options binding for CLI commands.
//
// Each Bind function reads the command-specific flags from a Cobra command,
// validates them and returns a plain options struct. Values that belong to
// the layered configuration (endpoint, weights, timeouts) are not read here;
// they reach the commands through pkg/config.
package bind

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/format"
)

// ErrInvalidOptions is wrapped by every flag validation failure.
var ErrInvalidOptions = errors.New("invalid options")

// Listing limits for models list.
const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOptions, fmt.Sprintf(format, args...))
}

// OutputOptions controls how results are rendered.
type OutputOptions struct {
	Mode    format.OutputMode
	Quiet   bool
	NoColor bool
}

// BindOutputOptions reads the global output flags.
//
// Flags read:
//   - --output: table | json
//   - --quiet
//   - --no-color
func BindOutputOptions(cmd *cobra.Command) (OutputOptions, error) {
	mode, _ := cmd.Flags().GetString("output")
	quiet, _ := cmd.Flags().GetBool("quiet")
	noColor, _ := cmd.Flags().GetBool("no-color")

	if mode == "" {
		mode = string(format.ModeTable)
	}
	if err := format.ValidateMode(strings.ToLower(mode)); err != nil {
		return OutputOptions{}, invalid("%v", err)
	}
	return OutputOptions{
		Mode:    format.ParseMode(mode),
		Quiet:   quiet,
		NoColor: noColor,
	}, nil
}

// IdentifyOptions holds identify command options.
type IdentifyOptions struct {
	ReportPath string
	NoReport   bool
	Top        int
}

// BindIdentifyOptions extracts and validates identify flags.
//
// Flags read:
//   - --report: Report file path ("-" for stdout)
//   - --no-report: Skip writing the report file
//   - --top: Number of ranked candidates to display, 0 shows all
func BindIdentifyOptions(cmd *cobra.Command) (IdentifyOptions, error) {
	reportPath, _ := cmd.Flags().GetString("report")
	noReport, _ := cmd.Flags().GetBool("no-report")
	top, _ := cmd.Flags().GetInt("top")

	if top < 0 {
		return IdentifyOptions{}, invalid("--top must not be negative, got %d", top)
	}
	if noReport && reportPath != "" {
		return IdentifyOptions{}, invalid("--report and --no-report are mutually exclusive")
	}
	return IdentifyOptions{ReportPath: reportPath, NoReport: noReport, Top: top}, nil
}

// ProfileOptions holds profile command options.
type ProfileOptions struct {
	Model string
	Runs  int
}

// BindProfileOptions extracts and validates profile arguments and flags.
//
// Flags read:
//   - --runs: Number of profiling runs (>= 1)
func BindProfileOptions(cmd *cobra.Command, args []string) (ProfileOptions, error) {
	runs, _ := cmd.Flags().GetInt("runs")

	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return ProfileOptions{}, invalid("exactly one model identity is required")
	}
	if runs < 1 {
		return ProfileOptions{}, invalid("--runs must be at least 1, got %d", runs)
	}
	return ProfileOptions{Model: strings.TrimSpace(args[0]), Runs: runs}, nil
}

// ListOptions holds models list options.
type ListOptions struct {
	Limit  int
	Cursor string
	All    bool
}

// BindListOptions extracts and validates models list flags.
//
// Flags read:
//   - --limit: Page size (1..1000)
//   - --cursor: Continuation cursor from a previous page
//   - --all: Follow cursors until the listing is exhausted
func BindListOptions(cmd *cobra.Command) (ListOptions, error) {
	limit, _ := cmd.Flags().GetInt("limit")
	cursor, _ := cmd.Flags().GetString("cursor")
	all, _ := cmd.Flags().GetBool("all")

	if limit < 1 || limit > MaxListLimit {
		return ListOptions{}, invalid("--limit must be between 1 and %d, got %d", MaxListLimit, limit)
	}
	if all && cursor != "" {
		return ListOptions{}, invalid("--all and --cursor are mutually exclusive")
	}
	return ListOptions{Limit: limit, Cursor: cursor, All: all}, nil
}

// PentestOptions holds pentest command options.
type PentestOptions struct {
	SuitePath  string
	ReportPath string
	Categories []string
}

// BindPentestOptions extracts pentest flags.
//
// Flags read:
//   - --suite-file: Pentest suite path, empty selects the built-in suite
//   - --report: Report file path ("-" for stdout)
//   - --category: Restrict the run to these categories (repeatable)
func BindPentestOptions(cmd *cobra.Command) (PentestOptions, error) {
	suitePath, _ := cmd.Flags().GetString("suite-file")
	reportPath, _ := cmd.Flags().GetString("report")
	categories, _ := cmd.Flags().GetStringSlice("category")

	for _, c := range categories {
		if strings.TrimSpace(c) == "" {
			return PentestOptions{}, invalid("--category must not be empty")
		}
	}
	return PentestOptions{SuitePath: suitePath, ReportPath: reportPath, Categories: categories}, nil
}
