package bind

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NoArgs rejects positional arguments as invalid options.
func NoArgs(cmd *cobra.Command, args []string) error {
	return wrapArgs(cobra.NoArgs(cmd, args))
}

// ExactArgs requires n positional arguments.
func ExactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return wrapArgs(cobra.ExactArgs(n)(cmd, args))
	}
}

// MaximumNArgs accepts at most n positional arguments.
func MaximumNArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return wrapArgs(cobra.MaximumNArgs(n)(cmd, args))
	}
}

func wrapArgs(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
}
