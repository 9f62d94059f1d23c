package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/llm-d/llm-d-edge-placement/internal/logging"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	verbosity   int
	development bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "placer",
		Short:         "Place edge servers over base-station demand points",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logging.Setup(logging.Options{
				Verbosity:   opts.verbosity,
				Development: opts.development,
				Output:      cmd.ErrOrStderr(),
			})
		},
	}
	cmd.PersistentFlags().IntVarP(&opts.verbosity, "verbosity", "v", logging.INFO, "Log verbosity (0 info, 1 debug, 2 trace)")
	cmd.PersistentFlags().BoolVar(&opts.development, "dev", false, "Human-readable log output")

	cmd.AddCommand(newRunCommand(), newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the placer version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}
