package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/app"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/bind"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/format"
	"github.com/llmfinder/llmfinder/pkg/identify"
)

func newProfileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "profile <model>",
		Short:   "Record the fingerprint of a model of known identity",
		GroupID: "identify",
		Long: `Run the prompt suite against an endpoint serving a known model, average the
extracted features over the accepted runs and merge the result into the
fingerprint repository. Runs below the coverage threshold are discarded.
Repeated profiling of the same model refines its running average.`,
		Example: `  # Profile llama3 served by Ollama with five runs
  llmfinder profile llama3:8b --model llama3:8b --runs 5

  # Profile without embeddings into a custom database
  llmfinder profile gpt-4o --endpoint https://api.openai.com/v1/chat/completions \
    --model gpt-4o --api-key $OPENAI_API_KEY --embeddings=false --db ./fp.db`,
		Args: bind.ExactArgs(1),
		RunE: runProfile,
	}

	fs := cmd.Flags()
	bind.AddEndpointFlags(fs)
	bind.AddSessionFlags(fs)
	bind.AddEmbeddingFlags(fs)
	bind.AddStorageFlags(fs)
	fs.Int("runs", 3, "Number of profiling runs")

	return cmd
}

func runProfile(cmd *cobra.Command, args []string) error {
	opts, err := bind.BindProfileOptions(cmd, args)
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
		identify.WithLogger(log.With().Str("component", "profile").Logger()),
	)

	res, profileErr := orch.Profile(ctx, opts.Model, opts.Runs)
	if res == nil {
		return profileErr
	}
	if err := renderProfile(env.Formatter(), res); err != nil {
		return err
	}
	if profileErr != nil {
		return &app.ReportedError{Err: profileErr}
	}
	return nil
}

func renderProfile(f format.Formatter, res *identify.ProfileResult) error {
	if f.Mode() == format.ModeJSON {
		return f.PrintJSON(res)
	}

	if err := f.PrintHeadline(fmt.Sprintf("Profile %s", res.ModelIdentity)); err != nil {
		return err
	}
	rows := make([][]string, 0, len(res.Runs))
	for _, run := range res.Runs {
		failed := make([]string, 0, len(run.Failures))
		for _, fail := range run.Failures {
			failed = append(failed, fail.PromptID)
		}
		rows = append(rows, []string{
			strconv.Itoa(run.Index + 1),
			format.Percent(run.Coverage),
			yesNo(run.Accepted),
			yesNo(run.Embedded),
			strings.Join(failed, ","),
		})
	}
	if err := f.PrintTable([]string{"Run", "Coverage", "Accepted", "Embedded", "Failed prompts"}, rows); err != nil {
		return err
	}
	if res.Successful == 0 {
		return nil
	}
	return f.PrintSummary(fmt.Sprintf("✓ Stored fingerprint for %s from %d/%d runs (%d features, %d embedded categories)",
		res.ModelIdentity, res.Successful, len(res.Runs), len(res.Features), len(res.Categories)))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
