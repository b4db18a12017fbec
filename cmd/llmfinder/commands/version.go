package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/app"
	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/format"
	v "github.com/llmfinder/llmfinder/pkg/version"
)

func newVersionCommand() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := v.Get()
			out := cmd.OutOrStdout()
			if short {
				_, err := fmt.Fprintln(out, info.Version)
				return err
			}

			env, err := app.FromCommand(cmd)
			if err != nil {
				return err
			}
			f := env.Formatter()
			if f.Mode() == format.ModeJSON {
				return f.PrintJSON(info)
			}
			_, err = fmt.Fprintf(out, "%s version: %s\nCommit: %s\nBuild Date: %s\nGo Version: %s\nPlatform: %s/%s\n",
				cliExecutable, info.Version, info.Commit, info.BuildDate, info.GoVersion, runtime.GOOS, runtime.GOARCH)
			return err
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only the version number")

	return cmd
}
