// Package erlang drives Erlang projects whose own Makefile builds and
// installs them in the source tree.
package erlang

import (
	"github.com/osmocom/osmo-dev/internal/buildsys"
	"github.com/osmocom/osmo-dev/internal/makefile"
)

type Erlang struct{}

var _ buildsys.BuildSystem = (*Erlang)(nil)

func New() *Erlang {
	return &Erlang{}
}

func (e *Erlang) Kind() buildsys.Kind {
	return buildsys.Erlang
}

func (e *Erlang) Prepare(p *buildsys.Project) []makefile.Command { return nil }

func (e *Erlang) PrepareInputs(p *buildsys.Project) []string { return nil }

// Configure is a no-op, the package makefile does everything.
func (e *Erlang) Configure(p *buildsys.Project) []makefile.Command { return nil }

func (e *Erlang) Build(p *buildsys.Project) []makefile.Command {
	cmds := []makefile.Command{
		makefile.Cmd(buildsys.Docker(p), makefile.Raw("$(MAKE)"), "-C", p.SrcDir, buildsys.Jobs(p)),
	}
	if p.Check {
		cmds = append(cmds, makefile.Cmd(buildsys.Docker(p), makefile.Raw("$(MAKE)"), "-C", p.SrcDir, "check"))
	}
	return cmds
}

func (e *Erlang) Install(p *buildsys.Project) []makefile.Command {
	return []makefile.Command{
		makefile.Cmd(buildsys.Docker(p), buildsys.Sudo(p), makefile.Raw("$(MAKE)"), "-C", p.SrcDir,
			"install", "PREFIX="+p.Prefix),
	}
}

func (e *Erlang) Distclean(p *buildsys.Project) []makefile.Command {
	return []makefile.Command{
		makefile.Cmd(makefile.Raw("$(MAKE)"), "-C", p.SrcDir, "clean"),
	}
}

func (e *Erlang) ConfigureFiles(p *buildsys.Project) buildsys.FileSet {
	return buildsys.FileSet{
		Root:  p.SrcDir,
		Names: []string{"rebar.config", "Makefile"},
	}
}

func (e *Erlang) SourceFiles(p *buildsys.Project) buildsys.FileSet {
	return buildsys.FileSet{
		Root:  p.SrcDir,
		Names: []string{"*.erl", "*.hrl", "*.app.src"},
	}
}
