package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/app"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/bind"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/format"
	"github.com/llmfinder/llmfinder/pkg/identify"
	"github.com/llmfinder/llmfinder/pkg/report"
)

func newIdentifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "identify",
		Short:   "Identify the model behind an endpoint",
		GroupID: "identify",
		Long: `Probe the endpoint with the prompt suite, extract the live fingerprint and
rank every stored model fingerprint by similarity.

Scoring modes:
  heuristic  feature-vector similarity only
  semantic   embedding similarity only
  hybrid     alpha*heuristic + (1-alpha)*semantic

When the embedding service is unavailable or the repository holds no
embeddings, the session falls back to heuristic scoring and reports the
reason.

Exit codes: 0 ranked, 2 invalid configuration, 3 coverage below minimum,
4 repository failure.`,
		Example: `  # Identify a local Ollama model with hybrid scoring
  llmfinder identify --endpoint http://localhost:11434/api/chat --model llama3

  # Heuristic only, JSON output
  llmfinder identify --mode heuristic -o json

  # Weight semantic similarity more heavily and keep the report
  llmfinder identify --alpha 0.3 --report ./session.json`,
		Args: bind.NoArgs,
		RunE: runIdentify,
	}

	fs := cmd.Flags()
	bind.AddEndpointFlags(fs)
	bind.AddSessionFlags(fs)
	bind.AddEmbeddingFlags(fs)
	bind.AddStorageFlags(fs)
	bind.AddScoringFlags(fs)
	fs.String("report", "", `Report file path, "-" for stdout (default: workspace reports/)`)
	fs.String("report-dir", "", "Directory for session reports")
	fs.Bool("no-report", false, "Do not write a report file")
	fs.Int("top", 10, "Number of candidates to display, 0 shows all")

	return cmd
}

func runIdentify(cmd *cobra.Command, _ []string) error {
	opts, err := bind.BindIdentifyOptions(cmd)
	if err != nil {
		return err
	}
	env, err := app.FromCommand(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	sessionCfg, err := env.SessionConfig()
	if err != nil {
		return err
	}
	s, err := env.Suite()
	if err != nil {
		return err
	}
	ep, err := env.Endpoint()
	if err != nil {
		return err
	}
	embedder, embedCloser, err := env.Embedder()
	if err != nil {
		return err
	}
	defer func() { _ = embedCloser.Close() }()

	repo, err := env.Repository(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	events, telemetry, err := env.Events(len(s.Prompts), zerolog.GlobalLevel() <= zerolog.DebugLevel)
	if err != nil {
		return err
	}
	defer func() { _ = telemetry.Close() }()

	orch := identify.New(ep, repo, s, sessionCfg,
		identify.WithEmbedder(embedder),
		identify.WithEventSink(events),
		identify.WithTarget(ep.Target()),
		identify.WithLogger(log.With().Str("component", "identify").Logger()),
	)

	res, sessionErr := orch.Identify(ctx)
	now := time.Now()
	rep := report.FromResult(res, sessionErr, now)

	if !opts.NoReport {
		if path := env.ReportPath(opts.ReportPath, app.ReportName("identify", res.SessionID, now)); path != "" {
			if err := writeReport(env, path, rep); err != nil {
				return err
			}
		}
	}

	if opts.ReportPath != "-" {
		if err := renderIdentification(env.Formatter(), rep, opts.Top); err != nil {
			return err
		}
	}
	if sessionErr != nil {
		return &app.ReportedError{Err: sessionErr}
	}
	return nil
}

func renderIdentification(f format.Formatter, rep report.IdentificationReport, top int) error {
	if f.Mode() == format.ModeJSON {
		return f.PrintJSON(rep)
	}

	if err := f.PrintHeadline(fmt.Sprintf("Identification %s", rep.SessionID)); err != nil {
		return err
	}
	pairs := [][2]string{
		{"Target", rep.Target},
		{"State", string(rep.State)},
		{"Coverage", fmt.Sprintf("%s (%d/%d prompts)", format.Percent(rep.Coverage), rep.Answered, rep.Total)},
		{"Scoring", scoringLabel(rep)},
	}
	if rep.WeightForced {
		pairs = append(pairs, [2]string{"Fallback", rep.ForcedReason})
	}
	for _, fail := range rep.Failures {
		pairs = append(pairs, [2]string{"Failed", fmt.Sprintf("%s/%s: %s", fail.Category, fail.PromptID, fail.Reason)})
	}
	if err := f.PrintKeyValues(pairs); err != nil {
		return err
	}
	if rep.State != identify.StateRanked {
		return nil
	}
	if len(rep.Matches) == 0 {
		return f.PrintSummary("No stored fingerprints to compare against; profile a model first")
	}

	matches := rep.Matches
	if top > 0 && len(matches) > top {
		matches = matches[:top]
	}
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		semantic := "n/a"
		if m.SemanticSimilarity != nil {
			semantic = format.Score(*m.SemanticSimilarity)
		}
		rows = append(rows, []string{
			strconv.Itoa(m.Rank),
			m.ModelIdentity,
			format.Score(m.CombinedScore),
			format.Score(m.HeuristicSimilarity),
			semantic,
			strconv.Itoa(m.CommonFeatures),
		})
	}
	if err := f.PrintTable([]string{"Rank", "Model", "Score", "Heuristic", "Semantic", "Features"}, rows); err != nil {
		return err
	}
	return f.PrintSummary(fmt.Sprintf("Best match: %s (%s)", rep.Matches[0].ModelIdentity, format.Score(rep.Matches[0].CombinedScore)))
}

func scoringLabel(rep report.IdentificationReport) string {
	if rep.Mode == "" {
		return "-"
	}
	return fmt.Sprintf("%s (heuristic weight %.2f)", rep.Mode, rep.EffectiveWeight)
}

// writeReport stores v at path; "-" writes to the command's stdout.
func writeReport(env *app.Env, path string, v any) error {
	if path == "-" {
		return report.Encode(env.Stdout, v)
	}
	if err := report.Write(path, v); err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("Report written")
	return nil
}
