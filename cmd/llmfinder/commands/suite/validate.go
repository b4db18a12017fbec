package suite

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/app"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/bind"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/format"
	"github.com/llmfinder/llmfinder/pkg/suite"
)

type validation struct {
	Valid       bool     `json:"valid"`
	Name        string   `json:"name"`
	Version     string   `json:"version,omitempty"`
	Prompts     int      `json:"prompts"`
	Categories  []string `json:"categories"`
	Features    int      `json:"features,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a prompt suite file",
		Long: `Parse and validate a prompt suite. Every prompt needs an id, a category,
text and at least one expected feature with a known matcher; regular
expressions must compile. The first invalid entry is reported.`,
		Example: `  llmfinder suite validate ./my-suite.yaml
  llmfinder suite validate --pentest ./attacks.yaml`,
		Args: bind.MaximumNArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	env, err := app.FromCommand(cmd)
	if err != nil {
		return err
	}
	path := ""
	if len(args) == 1 {
		path = args[0]
	}

	var v validation
	if pentestMode, _ := cmd.Flags().GetBool("pentest"); pentestMode {
		s, err := env.PentestSuite(path)
		if err != nil {
			return err
		}
		v = validation{Valid: true, Name: s.Name, Version: s.Version, Prompts: s.Len()}
		for _, c := range s.Categories {
			v.Categories = append(v.Categories, c.Name)
		}
	} else {
		if path == "" {
			path = env.Config.Suite.Path
		}
		s, err := suite.Load(path)
		if err != nil {
			return err
		}
		v = validation{
			Valid:       true,
			Name:        s.Name,
			Version:     s.Version,
			Prompts:     len(s.Prompts),
			Categories:  s.Categories(),
			Features:    len(s.FeatureNames()),
			Fingerprint: s.Fingerprint(),
		}
	}

	f := env.Formatter()
	if f.Mode() == format.ModeJSON {
		return f.PrintJSON(v)
	}
	msg := fmt.Sprintf("✓ %s is valid: %d prompts in %d categories (%s)",
		v.Name, v.Prompts, len(v.Categories), strings.Join(v.Categories, ", "))
	return f.PrintSummary(msg)
}
