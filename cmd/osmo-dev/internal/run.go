package internal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

// StageActionFailure reports that make failed while running the actions of
// some stage.
type StageActionFailure struct {
	Targets  []string
	ExitCode int
}

func (e *StageActionFailure) Error() string {
	goal := "default"
	if len(e.Targets) > 0 {
		goal = strings.Join(e.Targets, " ")
	}
	return fmt.Sprintf("make %s failed with exit code %d", goal, e.ExitCode)
}

func init() {
	commands = append(commands, newRunCmd)
}

type runner struct {
	make string
	dir  string
	jobs int
}

func (r *runner) command(targets []string) *exec.Cmd {
	args := []string{"-j", strconv.Itoa(r.jobs)}
	if r.dir != "" {
		args = append(args, "-C", r.dir)
	}
	args = append(args, targets...)
	return exec.Command(r.make, args...)
}

func (r *runner) run(targets []string) error {
	cmd := r.command(targets)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	log.Debugf("running %s", strings.Join(cmd.Args, " "))

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &StageActionFailure{Targets: targets, ExitCode: exitErr.ExitCode()}
	}
	return err
}

func newRunCmd() *cobra.Command {
	r := &runner{make: "make"}
	cmd := &cobra.Command{
		Use:   "run [-C dir] [targets...]",
		Short: "Run make on a generated Makefile",
		Long: `Run invokes make in the make dir, building the given targets or the default
goal of the Makefile. If make fails, osmo-dev exits with make's exit code.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if r.jobs < 1 {
				r.jobs = runtime.NumCPU()
			}
			return r.run(args)
		},
	}
	cmd.Flags().StringVarP(&r.dir, "directory", "C", "", "make dir to run make in (default the current directory)")
	cmd.Flags().IntVarP(&r.jobs, "jobs", "j", 0, "number of make jobs (default number of CPUs)")
	cmd.Flags().StringVar(&r.make, "make", r.make, "make binary")
	return cmd
}
