// Package models provides CLI commands for managing stored model
// fingerprints.
package models

import (
	"github.com/spf13/cobra"

	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/bind"
)

// NewCommand creates and returns the 'llmfinder models' command.
//
// Subcommands:
//   - list: Page through stored fingerprints
//   - show: Print the feature vector and embeddings of one model
//   - delete: Remove a model and its embeddings
//
// Example usage:
//
//	llmfinder models list --limit 20
//	llmfinder models show llama3:8b
//	llmfinder models delete llama3:8b
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "models",
		Aliases: []string{"model"},
		Short:   "Manage stored model fingerprints",
		GroupID: "manage",
		Long: `Inspect and maintain the fingerprint repository used for identification.

Fingerprints are created with 'llmfinder profile'. The repository is a
SQLite database inside the workspace unless --db-driver postgres is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	bind.AddStorageFlags(cmd.PersistentFlags())

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newDeleteCommand())

	return cmd
}
