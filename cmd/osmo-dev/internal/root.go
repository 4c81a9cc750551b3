package internal

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

// commands holds the constructors of the sub-commands, each file registers
// its own in init.
var commands []func() *cobra.Command

func newRootCmd() *cobra.Command {
	var verbose, quiet bool
	cmd := &cobra.Command{
		Use:   "osmo-dev",
		Short: "osmo-dev builds interdependent Osmocom projects from source",
		Long: `osmo-dev reads the project declarations (all.deps, all.urls, all.buildsystems)
and per-project configure options, and generates a Makefile that clones, configures,
builds and installs every project in dependency order. Only the stages affected by
a change are re-run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case verbose && quiet:
				return errors.New("--verbose and --quiet are mutually exclusive")
			case verbose:
				log.SetOutputLevel(log.Ldebug)
			case quiet:
				log.SetOutputLevel(log.Lwarn)
			default:
				log.SetOutputLevel(log.Linfo)
			}
			return nil
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log warnings and errors")

	for _, newCmd := range commands {
		cmd.AddCommand(newCmd())
	}
	return cmd
}

// Execute runs the command line and returns the process exit code. A failing
// make run passes its exit code through.
func Execute(ctx context.Context) int {
	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "osmo-dev: %v\n", err)
	var failure *StageActionFailure
	if errors.As(err, &failure) && failure.ExitCode > 0 {
		return failure.ExitCode
	}
	return 1
}
