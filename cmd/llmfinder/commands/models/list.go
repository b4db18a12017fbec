package models

import (
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/app"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/bind"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/format"
	"github.com/llmfinder/llmfinder/pkg/storage"
)

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored model fingerprints",
		Long: `List stored model fingerprints ordered by model identity.

Results are paginated; pass the printed cursor to --cursor for the next page
or use --all to print every model.`,
		Example: `  # First page
  llmfinder models list

  # Everything, as JSON
  llmfinder models list --all -o json`,
		Args: bind.NoArgs,
		RunE: runList,
	}

	cmd.Flags().Int("limit", bind.DefaultListLimit, "Models per page")
	cmd.Flags().String("cursor", "", "Continuation cursor from a previous page")
	cmd.Flags().Bool("all", false, "List every model")

	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	opts, err := bind.BindListOptions(cmd)
	if err != nil {
		return err
	}
	env, err := app.FromCommand(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	repo, err := env.Repository(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close fingerprint repository")
		}
	}()

	var (
		models []storage.ModelSummary
		cursor = opts.Cursor
	)
	for {
		page, err := repo.ListModels(ctx, storage.ListOptions{Limit: opts.Limit, Cursor: cursor})
		if err != nil {
			return err
		}
		models = append(models, page.Models...)
		cursor = page.NextCursor
		if !opts.All || cursor == "" {
			break
		}
	}

	f := env.Formatter()
	if f.Mode() == format.ModeJSON {
		return f.PrintJSON(storage.ModelPage{Models: nonNil(models), NextCursor: cursor})
	}

	if len(models) == 0 {
		return f.PrintSummary("No fingerprints stored. Create one with 'llmfinder profile <model>'.")
	}
	rows := make([][]string, 0, len(models))
	for _, m := range models {
		rows = append(rows, []string{
			m.ModelIdentity,
			strconv.Itoa(m.SampleCount),
			strconv.Itoa(m.FeatureCount),
			strconv.Itoa(m.EmbeddingCount),
			m.UpdatedAt.Local().Format(time.DateTime),
		})
	}
	if err := f.PrintTable([]string{"Model", "Samples", "Features", "Embeddings", "Updated"}, rows); err != nil {
		return err
	}
	if cursor != "" {
		return f.PrintSummary("More models available: --cursor " + cursor)
	}
	return nil
}

func nonNil(models []storage.ModelSummary) []storage.ModelSummary {
	if models == nil {
		return []storage.ModelSummary{}
	}
	return models
}
