package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/app"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/bind"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/format"
	"github.com/llmfinder/llmfinder/pkg/pentest"
)

func newPentestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pentest",
		Short:   "Run adversarial prompts against an endpoint",
		GroupID: "identify",
		Long: `Send the pentest suite (prompt injection, jailbreak and data leakage cases)
to the endpoint and classify every response with its keyword rules:

  VULNERABLE              the success keyword appeared, or the refusal keyword did not
  NOT VULNERABLE          the model refused as expected
  POTENTIALLY VULNERABLE  no keyword rule applies; review manually
  ERROR                   the endpoint did not answer`,
		Example: `  # Run the built-in suite and keep the report
  llmfinder pentest --model llama3 --report ./pentest.json

  # Only jailbreak cases
  llmfinder pentest --category jailbreak`,
		Args: bind.NoArgs,
		RunE: runPentest,
	}

	fs := cmd.Flags()
	bind.AddEndpointFlags(fs)
	bind.AddProbeFlags(fs)
	fs.String("suite-file", "", "Pentest suite file (default: built-in suite)")
	fs.String("report", "", `Report file path, "-" for stdout (default: workspace reports/)`)
	fs.StringSlice("category", nil, "Only run these categories (repeatable)")

	return cmd
}

func runPentest(cmd *cobra.Command, _ []string) error {
	opts, err := bind.BindPentestOptions(cmd)
	if err != nil {
		return err
	}
	env, err := app.FromCommand(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	s, err := env.PentestSuite(opts.SuitePath)
	if err != nil {
		return err
	}
	if s, err = s.Select(opts.Categories); err != nil {
		return fmt.Errorf("%w: %v", bind.ErrInvalidOptions, err)
	}
	ep, err := env.Endpoint()
	if err != nil {
		return err
	}

	runner := pentest.NewRunner(ep, s)
	runner.Retry = env.Config.Identify.Retry
	runner.PromptTimeout = env.Config.Identify.PromptTimeout
	runner.Concurrency = env.Config.Identify.Concurrency
	runner.Target = ep.Target()

	log.Info().Str("target", runner.Target).Int("cases", s.Len()).Msg("Starting pentest")
	rep, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("pentest canceled: %w", err)
	}

	now := time.Now()
	if path := env.ReportPath(opts.ReportPath, app.ReportName("pentest", rep.Suite, now)); path != "" {
		if err := writeReport(env, path, rep); err != nil {
			return err
		}
	}
	if opts.ReportPath == "-" {
		return nil
	}
	return renderPentest(env.Formatter(), env.Output.NoColor, rep)
}

func renderPentest(f format.Formatter, noColor bool, rep *pentest.Report) error {
	if f.Mode() == format.ModeJSON {
		return f.PrintJSON(rep)
	}

	if err := f.PrintHeadline(fmt.Sprintf("Pentest %s against %s", rep.Suite, rep.Target)); err != nil {
		return err
	}
	var rows [][]string
	for _, category := range rep.Categories {
		for _, res := range rep.Results[category] {
			rows = append(rows, []string{
				category,
				res.TestName,
				statusLabel(res.Status, noColor),
				strconv.Itoa(res.Attempts),
			})
		}
	}
	if err := f.PrintTable([]string{"Category", "Test", "Status", "Attempts"}, rows); err != nil {
		return err
	}
	by := rep.Summary.ByStatus
	return f.PrintSummary(fmt.Sprintf("%d cases: %d vulnerable, %d potentially vulnerable, %d not vulnerable, %d errors",
		rep.Summary.Total,
		by[pentest.StatusVulnerable],
		by[pentest.StatusPotentiallyVulnerable],
		by[pentest.StatusNotVulnerable],
		by[pentest.StatusError]))
}

func statusLabel(status pentest.Status, noColor bool) string {
	if noColor || color.NoColor {
		return string(status)
	}
	switch status {
	case pentest.StatusVulnerable, pentest.StatusError:
		return color.RedString(string(status))
	case pentest.StatusPotentiallyVulnerable:
		return color.YellowString(string(status))
	default:
		return color.GreenString(string(status))
	}
}
