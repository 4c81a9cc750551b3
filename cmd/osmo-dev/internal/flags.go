package internal

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/osmocom/osmo-dev/internal/config"
	"github.com/osmocom/osmo-dev/internal/decl"
	"github.com/osmocom/osmo-dev/internal/gen"
)

// genFlags binds the generation parameters to the flags of one command.
type genFlags struct {
	fs         *pflag.FlagSet
	cfg        *config.Config
	configFile string
}

func addGenFlags(fs *pflag.FlagSet) *genFlags {
	f := &genFlags{fs: fs, cfg: config.Default()}
	c := f.cfg
	fs.SortFlags = false

	fs.StringVar(&f.configFile, "config", "", "YAML file with defaults for any of the options below")
	fs.StringVarP(&c.MakeDir, "make-dir", "m", "", "directory to write the Makefile to and run make in (default make-<opts file names>)")
	fs.StringVarP(&c.SrcDir, "src-dir", "s", c.SrcDir, "parent directory of the git checkouts")
	fs.StringVarP(&c.BuildDir, "build-dir", "b", "", "parent directory of the out-of-tree build directories (default the make dir)")
	fs.StringVarP(&c.DeclsDir, "decls-dir", "D", c.DeclsDir, "directory holding all.deps, all.urls and all.buildsystems")
	fs.StringVarP(&c.URL, "url", "u", c.URL, "git clone base URL")
	fs.StringVarP(&c.PushURL, "push-url", "p", "", "git push base URL")
	fs.StringVarP(&c.Output, "output", "o", c.Output, "Makefile name inside the make dir")
	fs.IntVarP(&c.Jobs, "jobs", "j", 0, "parallel jobs for each build (default number of CPUs)")
	fs.BoolVarP(&c.SudoMakeInstall, "sudo-make-install", "I", false, "run make install with sudo")
	fs.BoolVarP(&c.NoLdconfig, "no-ldconfig", "L", false, "do not refresh the linker cache after installing")
	fs.BoolVar(&c.LdconfigWithoutSudo, "ldconfig-without-sudo", false, "refresh the linker cache without sudo")
	fs.BoolVarP(&c.NoMakeCheck, "no-make-check", "c", false, "do not run make check after building")
	fs.StringVar(&c.DockerCmd, "docker-cmd", "", "prefix configure, build and install commands with this wrapper")
	fs.BoolVarP(&c.BuildDebug, "build-debug", "g", false, "build with debug info (CFLAGS=-g)")
	fs.BoolVarP(&c.AutoDistclean, "auto-distclean", "a", false, "distclean sources that were configured in place")
	fs.StringVar(&c.Prefix, "prefix", c.Prefix, "install prefix")
	fs.BoolVar(&c.SrcCopy, "autoreconf-in-src-copy", false, "run autoreconf and configure in a synced copy of the sources")
	fs.StringSliceVarP(&c.Targets, "targets", "T", nil, "only generate rules for these projects and convenience targets, with their dependencies")
	return f
}

// load returns the validated configuration, with the option files given as
// positional arguments.
func (f *genFlags) load(args []string) (*config.Config, error) {
	c := f.cfg
	if len(args) > 0 {
		c.OptsFiles = args
	}
	if f.configFile != "" {
		file, err := config.LoadFile(f.configFile)
		if err != nil {
			return nil, err
		}
		file.Merge(c, func(name string) bool {
			if name == "opts" {
				return len(args) > 0
			}
			return f.fs.Changed(name)
		})
	}
	c.Self = self()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func newGenerator(c *config.Config) (*gen.Generator, error) {
	d, err := decl.Load(c.DeclsDir)
	if err != nil {
		return nil, err
	}
	opts, err := decl.ReadOptions(c.OptsFiles...)
	if err != nil {
		return nil, err
	}
	return gen.New(c, d, opts)
}

// self returns how generated rules invoke this binary. A bare name was found
// in PATH and stays that way.
func self() string {
	s := os.Args[0]
	if !strings.ContainsRune(s, filepath.Separator) {
		return s
	}
	abs, err := filepath.Abs(s)
	if err != nil {
		return s
	}
	return abs
}
