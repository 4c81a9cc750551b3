// Package buildsys describes, per build system kind, the commands that
// configure, build and install one project.
package buildsys

import (
	"fmt"
	"strconv"

	"github.com/osmocom/osmo-dev/internal/makefile"
)

// Kind names a build system as written in all.buildsystems.
type Kind string

const (
	Autotools Kind = "autotools"
	Meson     Kind = "meson"
	Erlang    Kind = "erlang"
)

// UnknownBuildSystemError reports an all.buildsystems value no build system
// handles.
type UnknownBuildSystemError struct {
	Project string
	Kind    string
}

func (e *UnknownBuildSystemError) Error() string {
	return fmt.Sprintf("project %q: unknown buildsystem %q", e.Project, e.Kind)
}

// ParseKind validates the build system declared for project. An empty name
// means autotools.
func ParseKind(project, name string) (Kind, error) {
	switch k := Kind(name); k {
	case "":
		return Autotools, nil
	case Autotools, Meson, Erlang:
		return k, nil
	}
	return "", &UnknownBuildSystemError{Project: project, Kind: name}
}

// Project is what a build system needs to know about one project. All paths
// are relative to the directory make runs in.
type Project struct {
	Name string

	// SrcDir holds the sources as checked out.
	SrcDir string
	// ConfigSrcDir is the tree that bootstrap and configure operate on:
	// SrcDir, or a mirror of it.
	ConfigSrcDir string
	BuildDir     string
	// BuildToSrc is ConfigSrcDir relative to BuildDir.
	BuildToSrc string

	ConfigureOpts []string
	Prefix        string
	Jobs          int
	Check         bool
	Debug         bool
	DockerCmd     string
	SudoInstall   bool
}

// BuildSystem captures the stage actions of one build system kind. A nil
// command list means the stage has nothing to do for this kind.
type BuildSystem interface {
	Kind() Kind

	// Prepare regenerates bootstrap files inside ConfigSrcDir.
	Prepare(p *Project) []makefile.Command
	// PrepareInputs are files whose change re-runs Prepare.
	PrepareInputs(p *Project) []string

	// Configure runs inside a freshly created BuildDir.
	Configure(p *Project) []makefile.Command
	Build(p *Project) []makefile.Command
	Install(p *Project) []makefile.Command
	Distclean(p *Project) []makefile.Command

	// ConfigureFiles are the build descriptions whose change re-runs Configure.
	ConfigureFiles(p *Project) FileSet
	// SourceFiles are the files whose change re-runs Build.
	SourceFiles(p *Project) FileSet
}

// Docker returns the wrapper command words, if any.
func Docker(p *Project) []makefile.Word {
	if p.DockerCmd == "" {
		return nil
	}
	return []makefile.Word{makefile.Raw(p.DockerCmd)}
}

// Sudo returns the privilege elevation words for install steps, if any.
func Sudo(p *Project) []makefile.Word {
	if !p.SudoInstall {
		return nil
	}
	return []makefile.Word{makefile.Lit("sudo")}
}

// CFlags returns the compiler flag environment for configure steps.
func CFlags(p *Project) []makefile.Word {
	if !p.Debug {
		return nil
	}
	return []makefile.Word{makefile.Lit("CFLAGS=-g")}
}

// Jobs returns the parallelism argument for build drivers.
func Jobs(p *Project) []makefile.Word {
	return makefile.Lits("-j", strconv.Itoa(p.Jobs))
}

// InDir prefixes words with a change into dir.
func InDir(dir string, words ...makefile.Word) []makefile.Word {
	ret := append(makefile.Lits("cd", dir), makefile.Raw("&&"))
	return append(ret, words...)
}
