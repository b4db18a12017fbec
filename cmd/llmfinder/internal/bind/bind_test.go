package bind

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/llmfinder/llmfinder/cmd/llmfinder/internal/format"
)

func newCmd(t *testing.T, define func(cmd *cobra.Command), args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	define(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestBindOutputOptions(t *testing.T) {
	define := func(cmd *cobra.Command) {
		cmd.Flags().String("output", "table", "")
		cmd.Flags().Bool("quiet", false, "")
		cmd.Flags().Bool("no-color", false, "")
	}

	tests := []struct {
		name    string
		args    []string
		want    OutputOptions
		wantErr bool
	}{
		{
			name: "defaults",
			want: OutputOptions{Mode: format.ModeTable},
		},
		{
			name: "json quiet",
			args: []string{"--output", "JSON", "--quiet", "--no-color"},
			want: OutputOptions{Mode: format.ModeJSON, Quiet: true, NoColor: true},
		},
		{
			name:    "invalid mode",
			args:    []string{"--output", "xml"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BindOutputOptions(newCmd(t, define, tt.args...))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidOptions)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestBindIdentifyOptions(t *testing.T) {
	define := func(cmd *cobra.Command) {
		cmd.Flags().String("report", "", "")
		cmd.Flags().Bool("no-report", false, "")
		cmd.Flags().Int("top", 10, "")
	}

	tests := []struct {
		name    string
		args    []string
		want    IdentifyOptions
		wantErr bool
	}{
		{name: "defaults", want: IdentifyOptions{Top: 10}},
		{name: "report path", args: []string{"--report", "out.json", "--top", "0"}, want: IdentifyOptions{ReportPath: "out.json"}},
		{name: "no report", args: []string{"--no-report"}, want: IdentifyOptions{NoReport: true, Top: 10}},
		{name: "negative top", args: []string{"--top", "-1"}, wantErr: true},
		{name: "conflicting report flags", args: []string{"--report", "x.json", "--no-report"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BindIdentifyOptions(newCmd(t, define, tt.args...))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidOptions)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestBindProfileOptions(t *testing.T) {
	define := func(cmd *cobra.Command) {
		cmd.Flags().Int("runs", 3, "")
	}

	t.Run("valid", func(t *testing.T) {
		got, err := BindProfileOptions(newCmd(t, define, "--runs", "5"), []string{" gpt-4o "})
		require.NoError(t, err)
		require.Equal(t, ProfileOptions{Model: "gpt-4o", Runs: 5}, got)
	})

	t.Run("missing model", func(t *testing.T) {
		_, err := BindProfileOptions(newCmd(t, define), nil)
		require.ErrorIs(t, err, ErrInvalidOptions)
	})

	t.Run("blank model", func(t *testing.T) {
		_, err := BindProfileOptions(newCmd(t, define), []string{"  "})
		require.ErrorIs(t, err, ErrInvalidOptions)
	})

	t.Run("zero runs", func(t *testing.T) {
		_, err := BindProfileOptions(newCmd(t, define, "--runs", "0"), []string{"gpt-4o"})
		require.ErrorIs(t, err, ErrInvalidOptions)
		require.Contains(t, err.Error(), "--runs")
	})
}

func TestBindListOptions(t *testing.T) {
	define := func(cmd *cobra.Command) {
		cmd.Flags().Int("limit", DefaultListLimit, "")
		cmd.Flags().String("cursor", "", "")
		cmd.Flags().Bool("all", false, "")
	}

	tests := []struct {
		name    string
		args    []string
		want    ListOptions
		wantErr bool
	}{
		{name: "defaults", want: ListOptions{Limit: DefaultListLimit}},
		{name: "cursor", args: []string{"--limit", "5", "--cursor", "abc"}, want: ListOptions{Limit: 5, Cursor: "abc"}},
		{name: "all", args: []string{"--all"}, want: ListOptions{Limit: DefaultListLimit, All: true}},
		{name: "zero limit", args: []string{"--limit", "0"}, wantErr: true},
		{name: "limit too large", args: []string{"--limit", "1001"}, wantErr: true},
		{name: "all with cursor", args: []string{"--all", "--cursor", "abc"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BindListOptions(newCmd(t, define, tt.args...))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidOptions)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestBindPentestOptions(t *testing.T) {
	define := func(cmd *cobra.Command) {
		cmd.Flags().String("suite-file", "", "")
		cmd.Flags().String("report", "", "")
		cmd.Flags().StringSlice("category", nil, "")
	}

	got, err := BindPentestOptions(newCmd(t, define, "--category", "jailbreak,data_leakage", "--report", "-"))
	require.NoError(t, err)
	require.Equal(t, []string{"jailbreak", "data_leakage"}, got.Categories)
	require.Equal(t, "-", got.ReportPath)

	_, err = BindPentestOptions(newCmd(t, define, "--category", " "))
	require.ErrorIs(t, err, ErrInvalidOptions)
}
