// Package meson drives projects built with meson and ninja.
package meson

import (
	"github.com/osmocom/osmo-dev/internal/buildsys"
	"github.com/osmocom/osmo-dev/internal/makefile"
)

// Meson sets up a build directory, then compiles and installs from it.
type Meson struct{}

var _ buildsys.BuildSystem = (*Meson)(nil)

// New creates a new Meson helper.
func New() *Meson {
	return &Meson{}
}

func (m *Meson) Kind() buildsys.Kind {
	return buildsys.Meson
}

// Prepare is not needed, meson has no bootstrap step.
func (m *Meson) Prepare(p *buildsys.Project) []makefile.Command { return nil }

func (m *Meson) PrepareInputs(p *buildsys.Project) []string { return nil }

func (m *Meson) Configure(p *buildsys.Project) []makefile.Command {
	var words []makefile.Word
	words = append(words, buildsys.CFlags(p)...)
	words = append(words, buildsys.Docker(p)...)
	words = append(words, makefile.Lits("meson", "setup", "--prefix="+p.Prefix)...)
	words = append(words, makefile.Lits(p.ConfigureOpts...)...)
	words = append(words, makefile.Lits(p.BuildToSrc, ".")...)
	return []makefile.Command{makefile.Cmd(buildsys.InDir(p.BuildDir, words...))}
}

func (m *Meson) Build(p *buildsys.Project) []makefile.Command {
	cmds := []makefile.Command{
		makefile.Cmd(buildsys.Docker(p), "meson", "compile", "-C", p.BuildDir, buildsys.Jobs(p)),
	}
	if p.Check {
		cmds = append(cmds, makefile.Cmd(buildsys.Docker(p), "meson", "test", "-C", p.BuildDir))
	}
	return cmds
}

func (m *Meson) Install(p *buildsys.Project) []makefile.Command {
	return []makefile.Command{
		makefile.Cmd(buildsys.Docker(p), buildsys.Sudo(p), "ninja", "-C", p.BuildDir, "install"),
	}
}

// Distclean has nothing to do: meson never writes into the source tree.
func (m *Meson) Distclean(p *buildsys.Project) []makefile.Command { return nil }

func (m *Meson) ConfigureFiles(p *buildsys.Project) buildsys.FileSet {
	return buildsys.FileSet{
		Root:  p.SrcDir,
		Names: []string{"meson.build", "meson_options.txt", "meson.options"},
	}
}

func (m *Meson) SourceFiles(p *buildsys.Project) buildsys.FileSet {
	return buildsys.FileSet{
		Root:    p.SrcDir,
		Names:   buildsys.SourcePatterns,
		Exclude: []string{"config.h"},
	}
}
