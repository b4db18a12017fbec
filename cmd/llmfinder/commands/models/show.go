package models

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/app"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/bind"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/format"
	"github.com/llmfinder/llmfinder/pkg/storage"
)

// modelDetail is the JSON shape of models show.
type modelDetail struct {
	storage.HeuristicFingerprint
	Embeddings []embeddingSummary `json:"embeddings"`
}

type embeddingSummary struct {
	Category    string `json:"category"`
	Rows        int    `json:"rows"`
	SampleCount int    `json:"sample_count"`
	Dimension   int    `json:"dimension"`
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <model>",
		Short: "Show the stored fingerprint of a model",
		Example: `  llmfinder models show llama3:8b
  llmfinder models show gpt-4o -o json`,
		Args: bind.ExactArgs(1),
		RunE: runShow,
	}
}

func runShow(cmd *cobra.Command, args []string) error {
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

	fp, err := repo.GetHeuristic(ctx, args[0])
	if err != nil {
		return err
	}

	byCategory := make(map[string]*embeddingSummary)
	for row, err := range repo.LoadAllEmbeddings(ctx) {
		if err != nil {
			return err
		}
		if row.ModelIdentity != fp.ModelIdentity {
			continue
		}
		s, ok := byCategory[row.Category]
		if !ok {
			s = &embeddingSummary{Category: row.Category, Dimension: len(row.Vector)}
			byCategory[row.Category] = s
		}
		s.Rows++
		s.SampleCount += row.SampleCount
	}
	detail := modelDetail{HeuristicFingerprint: fp, Embeddings: make([]embeddingSummary, 0, len(byCategory))}
	for _, s := range byCategory {
		detail.Embeddings = append(detail.Embeddings, *s)
	}
	sort.Slice(detail.Embeddings, func(i, j int) bool {
		return detail.Embeddings[i].Category < detail.Embeddings[j].Category
	})

	f := env.Formatter()
	if f.Mode() == format.ModeJSON {
		return f.PrintJSON(detail)
	}

	if err := f.PrintHeadline(fp.ModelIdentity); err != nil {
		return err
	}
	if err := f.PrintKeyValues([][2]string{
		{"Samples", strconv.Itoa(fp.SampleCount)},
		{"Created", fp.CreatedAt.Local().Format(time.DateTime)},
		{"Updated", fp.UpdatedAt.Local().Format(time.DateTime)},
	}); err != nil {
		return err
	}

	names := make([]string, 0, len(fp.Features))
	for name := range fp.Features {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, format.Score(fp.Features[name]), strconv.Itoa(fp.FeatureCounts[name])})
	}
	if err := f.PrintTable([]string{"Feature", "Score", "Samples"}, rows); err != nil {
		return err
	}

	if len(detail.Embeddings) == 0 {
		return f.PrintSummary("No embeddings stored; semantic comparison will skip this model")
	}
	rows = rows[:0]
	for _, e := range detail.Embeddings {
		rows = append(rows, []string{e.Category, strconv.Itoa(e.Rows), strconv.Itoa(e.SampleCount), fmt.Sprint(e.Dimension)})
	}
	return f.PrintTable([]string{"Category", "Rows", "Samples", "Dimension"}, rows)
}
