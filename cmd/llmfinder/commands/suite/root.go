// Package suite provides CLI commands for inspecting prompt suites.
package suite

import (
	"github.com/spf13/cobra"
)

// NewCommand creates and returns the 'llmfinder suite' command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "suite",
		Short:   "Inspect and validate prompt suites",
		GroupID: "manage",
		Long: `Inspect and validate the identification and pentest prompt suites.

Without a path the configured suite (suite.path / suite.pentest_path) or the
built-in suite is used.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().Bool("pentest", false, "Operate on a pentest suite instead of the identification suite")

	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newShowCommand())

	return cmd
}
