package internal

import (
	"fmt"

	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"

	"github.com/osmocom/osmo-dev/internal/status"
)

func init() {
	commands = append(commands, newStatusCmd)
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [flags] [opts files...]",
		Short: "List the stages make would re-run",
		Long: `Status evaluates the plan gen would write against the stage markers and sources
in the make dir, and lists each outdated stage with the reason make would re-run it.
Nothing is built. Takes the same flags as gen.`,
	}
	flags := addGenFlags(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		c, err := flags.load(args)
		if err != nil {
			return err
		}
		g, err := newGenerator(c)
		if err != nil {
			return err
		}
		ev := &status.Evaluator{Dir: c.MakeDir, Sets: g.FileSets(), Jobs: c.Jobs}
		stale, err := ev.Evaluate(g.Plan())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(stale) == 0 {
			log.Infof("%d projects are up to date", len(g.Projects()))
			return nil
		}
		for _, s := range stale {
			fmt.Fprintln(out, s)
		}
		return nil
	}
	return cmd
}
