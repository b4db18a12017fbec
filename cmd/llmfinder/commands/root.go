package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	modelsCmd "github.com/llmfinder/llmfinder/cmd/llmfinder/commands/models"
	suiteCmd "github.com/llmfinder/llmfinder/cmd/llmfinder/commands/suite"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/app"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/bind"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/format"
	"github.com/llmfinder/llmfinder/pkg/appctx"
	"github.com/llmfinder/llmfinder/pkg/config"
	"github.com/llmfinder/llmfinder/pkg/identify"
	"github.com/llmfinder/llmfinder/pkg/logging"
	"github.com/llmfinder/llmfinder/pkg/workspace"
)

const cliExecutable = "llmfinder"

// NewCommand constructs the top-level llmfinder CLI command, wiring global
// flags, layered configuration, logging and workspace preparation.
func NewCommand() *cobra.Command {
	var (
		configFile        string
		workspaceDisabled bool
		verbosityCount    int
		debug             bool
		logCloser         io.Closer
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "LLMFinder identifies the language model behind a chat endpoint",
		Long: `LLMFinder probes a chat endpoint with a fixed prompt suite, measures
behavioral features of the answers and ranks stored model fingerprints by
heuristic and semantic similarity.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := bind.BindOutputOptions(cmd); err != nil {
				return err
			}

			explicit := configFile != ""
			path := configFile
			if !explicit {
				path = workspace.ConfigFile()
			}

			mgr := config.NewManager()
			if err := mgr.Load(config.DefaultSources(path, explicit, cmd.Flags(), bind.ConfigFlagKeys, debug)...); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			cfg := mgr.Get()

			level := cfg.Log.Level
			switch {
			case verbosityCount >= 2:
				level = "trace"
			case verbosityCount == 1 && !debug:
				level = "debug"
			}
			closer, err := logging.ConfigureGlobalLogging(level, cfg.Log.Format, cfg.Log.File)
			if err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}
			logCloser = closer

			ctx := appctx.WithConfig(cmd.Context(), mgr)

			if !workspaceDisabled {
				prepared, err := workspace.Prepare(cfg.WorkspaceDir)
				if err != nil {
					return fmt.Errorf("prepare workspace: %w", err)
				}
				ctx = workspace.WithContext(ctx, prepared)
				log.Debug().Str("workspace", prepared).Strs("sources", mgr.Sources()).Msg("workspace ready")
			} else {
				log.Debug().Msg("workspace disabled for this run")
			}

			cmd.SetContext(ctx)
			if root := cmd.Root(); root != nil && root != cmd {
				root.SetContext(ctx)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", bind.ErrInvalidOptions, err)
	})

	pf := cmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Configuration file path (default $XDG_CONFIG_HOME/llmfinder/config.yaml)")
	pf.String("workspace-dir", "", "Override workspace root directory")
	pf.BoolVar(&workspaceDisabled, "no-workspace", false, "Disable workspace persistence for this run")
	pf.CountVarP(&verbosityCount, "verbosity", "v", "Increase logging verbosity (repeatable)")
	pf.BoolVar(&debug, "debug", false, "Enable debug logging")
	pf.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	pf.String("log-format", "", "Log format (text, json)")
	pf.String("log-file", "", "Also write JSON logs to this file")
	pf.StringP("output", "o", string(format.ModeTable), "Output format (table, json)")
	pf.BoolP("quiet", "q", false, "Suppress summaries and progress output")
	pf.Bool("no-color", false, "Disable colored output")

	cmd.AddGroup(&cobra.Group{ID: "identify", Title: "Identification Commands"})
	cmd.AddGroup(&cobra.Group{ID: "manage", Title: "Management Commands"})

	cmd.AddCommand(newIdentifyCommand())
	cmd.AddCommand(newProfileCommand())
	cmd.AddCommand(newPentestCommand())
	cmd.AddCommand(modelsCmd.NewCommand())
	cmd.AddCommand(suiteCmd.NewCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// Execute runs the CLI with args and returns the process exit code. Errors
// are rendered on stderr (or stdout as JSON) together with remediation
// hints.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	executed, err := cmd.ExecuteContextC(ctx)
	if err == nil {
		return 0
	}
	if executed == nil {
		executed = cmd
	}

	opts, optErr := bind.BindOutputOptions(executed)
	if optErr != nil {
		opts = bind.OutputOptions{Mode: format.ModeTable}
	}
	var reported *app.ReportedError
	if !(errors.As(err, &reported) && opts.Mode == format.ModeJSON) {
		f := format.New(stdout, stderr, opts.Mode, false, !opts.NoColor && !color.NoColor)
		_ = f.PrintError(err, errorCode(err), suggestions(err))
	}
	return ExitCode(err)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, bind.ErrInvalidOptions):
		return "INVALID_OPTIONS"
	case errors.Is(err, config.ErrInvalid):
		return "INVALID_CONFIG"
	}
	return identify.ErrorCode(err)
}

func suggestions(err error) []string {
	switch {
	case errors.Is(err, bind.ErrInvalidOptions):
		return []string{"Run 'llmfinder <command> --help' for usage"}
	case errors.Is(err, config.ErrInvalid):
		return []string{
			"Check the configuration file and LLMFINDER_* environment variables",
			"Show effective defaults: llmfinder --help",
		}
	}
	return identify.Suggestions(err)
}

// ExitCode maps command errors to process exit codes: 0 success,
// 1 generic failure, 2 configuration or usage error, 3 insufficient
// coverage, 4 repository failure, 5 model not found.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, bind.ErrInvalidOptions), errors.Is(err, config.ErrInvalid):
		return 2
	}
	return identify.ExitCode(err)
}
