// Package autotools drives projects built with autoreconf, ./configure and make.
package autotools

import (
	"path/filepath"

	"github.com/osmocom/osmo-dev/internal/buildsys"
	"github.com/osmocom/osmo-dev/internal/makefile"
)

// AutoTools builds out of tree: autoreconf in the source tree, configure and
// make in the build directory.
type AutoTools struct{}

var _ buildsys.BuildSystem = (*AutoTools)(nil)

// New creates a new AutoTools helper.
func New() *AutoTools {
	return &AutoTools{}
}

func (a *AutoTools) Kind() buildsys.Kind {
	return buildsys.Autotools
}

// Prepare runs autoreconf. A stale .version would otherwise pin the version
// that git-version-gen reports.
func (a *AutoTools) Prepare(p *buildsys.Project) []makefile.Command {
	return []makefile.Command{
		makefile.Cmd("rm", "-f", filepath.Join(p.ConfigSrcDir, ".version")).Ignored(),
		makefile.Cmd(buildsys.InDir(p.ConfigSrcDir, makefile.Lits("autoreconf", "-fi")...)),
	}
}

func (a *AutoTools) PrepareInputs(p *buildsys.Project) []string {
	return []string{filepath.Join(p.SrcDir, "configure.ac")}
}

func (a *AutoTools) Configure(p *buildsys.Project) []makefile.Command {
	var words []makefile.Word
	words = append(words, buildsys.CFlags(p)...)
	words = append(words, buildsys.Docker(p)...)
	words = append(words, makefile.Lit(filepath.Join(p.BuildToSrc, "configure")))
	words = append(words, makefile.Lit("--prefix="+p.Prefix))
	words = append(words, makefile.Lits(p.ConfigureOpts...)...)
	return []makefile.Command{makefile.Cmd(buildsys.InDir(p.BuildDir, words...))}
}

func (a *AutoTools) Build(p *buildsys.Project) []makefile.Command {
	c := makefile.Cmd(buildsys.Docker(p), makefile.Raw("$(MAKE)"), "-C", p.BuildDir, buildsys.Jobs(p))
	if p.Check {
		c.Words = append(c.Words, makefile.Lit("check"))
	}
	return []makefile.Command{c}
}

func (a *AutoTools) Install(p *buildsys.Project) []makefile.Command {
	return []makefile.Command{
		makefile.Cmd(buildsys.Docker(p), buildsys.Sudo(p), makefile.Raw("$(MAKE)"), "-C", p.BuildDir, "install"),
	}
}

func (a *AutoTools) Distclean(p *buildsys.Project) []makefile.Command {
	return []makefile.Command{
		makefile.Cmd(makefile.Raw("$(MAKE)"), "-C", p.SrcDir, "distclean"),
	}
}

func (a *AutoTools) ConfigureFiles(p *buildsys.Project) buildsys.FileSet {
	return buildsys.FileSet{
		Root:    p.SrcDir,
		Names:   []string{"Makefile.am", "*.in"},
		Exclude: []string{"Makefile.in", "config.h.in"},
	}
}

func (a *AutoTools) SourceFiles(p *buildsys.Project) buildsys.FileSet {
	return buildsys.FileSet{
		Root:    p.SrcDir,
		Names:   buildsys.SourcePatterns,
		Exclude: []string{"config.h"},
	}
}
