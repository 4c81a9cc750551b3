package internal

import (
	"github.com/spf13/cobra"
)

func init() {
	commands = append(commands, newGenCmd)
}

func newGenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gen [flags] [opts files...]",
		Short: "Generate the Makefile",
		Long: `Gen generates a Makefile that builds the requested projects and everything they
depend on. The configure options of all given opts files are merged. Run make in the
make dir afterwards, the Makefile regenerates itself with "make regen".`,
		Example: `  osmo-dev gen default.opts iu.opts
  osmo-dev gen -T osmo-msc --autoreconf-in-src-copy default.opts`,
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
		return g.Write()
	}
	return cmd
}
