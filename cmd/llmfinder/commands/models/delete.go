package models

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/app"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/bind"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/format"
)

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <model>",
		Aliases: []string{"rm"},
		Short:   "Delete a model fingerprint and its embeddings",
		Example: `  llmfinder models delete llama3:8b`,
		Args:    bind.ExactArgs(1),
		RunE:    runDelete,
	}
}

func runDelete(cmd *cobra.Command, args []string) error {
	env, err := app.FromCommand(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	repo, err := env.Repository(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	if err := repo.DeleteModel(ctx, args[0]); err != nil {
		return err
	}

	f := env.Formatter()
	if f.Mode() == format.ModeJSON {
		return f.PrintJSON(map[string]any{"success": true, "deleted": args[0]})
	}
	return f.PrintSummary(fmt.Sprintf("✓ Deleted %s", args[0]))
}
