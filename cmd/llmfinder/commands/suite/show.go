package suite

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/app"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/bind"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/format"
	"github.com/llmfinder/llmfinder/pkg/stringutil"
	"github.com/llmfinder/llmfinder/pkg/suite"
)

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [path]",
		Short: "List the prompts of a suite",
		Example: `  llmfinder suite show
  llmfinder suite show --pentest -o json`,
		Args: bind.MaximumNArgs(1),
		RunE: runShow,
	}
}

func runShow(cmd *cobra.Command, args []string) error {
	env, err := app.FromCommand(cmd)
	if err != nil {
		return err
	}
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	f := env.Formatter()

	if pentestMode, _ := cmd.Flags().GetBool("pentest"); pentestMode {
		s, err := env.PentestSuite(path)
		if err != nil {
			return err
		}
		if f.Mode() == format.ModeJSON {
			return f.PrintJSON(s)
		}
		var rows [][]string
		for _, c := range s.Categories {
			for _, tc := range c.Cases {
				rows = append(rows, []string{c.Name, tc.Name, string(tc.EvaluationStrategy), stringutil.Snippet(tc.Prompt, 60)})
			}
		}
		if err := f.PrintHeadline(s.Name); err != nil {
			return err
		}
		return f.PrintTable([]string{"Category", "Test", "Strategy", "Prompt"}, rows)
	}

	if path == "" {
		path = env.Config.Suite.Path
	}
	s, err := suite.Load(path)
	if err != nil {
		return err
	}
	if f.Mode() == format.ModeJSON {
		return f.PrintJSON(s)
	}

	rows := make([][]string, 0, len(s.Prompts))
	for _, p := range s.Prompts {
		features := make([]string, 0, len(p.ExpectedFeatures))
		for name, spec := range p.ExpectedFeatures {
			features = append(features, name+":"+string(spec.Matcher.Kind))
		}
		sort.Strings(features)
		rows = append(rows, []string{p.ID, p.Category, strings.Join(features, ", ")})
	}
	if err := f.PrintHeadline(s.Name + " " + s.Version + " (" + s.Fingerprint() + ")"); err != nil {
		return err
	}
	return f.PrintTable([]string{"Prompt", "Category", "Features"}, rows)
}
