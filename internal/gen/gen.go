// Copyright 2025 The osmo-dev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gen turns the declarations and the generation parameters into a
// staged, incremental Makefile.
//
// Every project gets one marker file per stage, .make.<project>.<stage>,
// that is touched when the stage succeeds. A stage lists the marker of the
// stage before it as a prerequisite, plus whatever else invalidates it:
// configure depends on the install markers of the project's dependencies
// and on its build descriptions, build on its sources. An edit thus
// re-runs exactly the stages after it, in this and every downstream project.
package gen

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/qiniu/x/log"

	"github.com/osmocom/osmo-dev/internal/buildsys"
	"github.com/osmocom/osmo-dev/internal/buildsys/autotools"
	"github.com/osmocom/osmo-dev/internal/buildsys/erlang"
	"github.com/osmocom/osmo-dev/internal/buildsys/meson"
	"github.com/osmocom/osmo-dev/internal/config"
	"github.com/osmocom/osmo-dev/internal/decl"
	"github.com/osmocom/osmo-dev/internal/targets"
)

// SrcCopyDir is the directory, relative to the make dir, that holds the
// source mirrors when autoreconf runs in a copy of the sources.
const SrcCopyDir = "src_copy"

// Stage names, in execution order.
const (
	StageClone     = "clone"
	StageAutoconf  = "autoconf"
	StageConfigure = "configure"
	StageBuild     = "build"
	StageInstall   = "install"
)

// Marker returns the stage marker file of project.
func Marker(project, stage string) string {
	return ".make." + project + "." + stage
}

type project struct {
	name string
	deps []string

	// checkout is the cloned repository the sources live in. For a virtual
	// sub-component it is the parent project.
	checkout string
	// subdir is the source directory relative to the source dir.
	subdir  string
	virtual bool
	url     string

	bs buildsys.BuildSystem
	bp buildsys.Project
}

// Generator produces the plan for one configuration.
type Generator struct {
	cfg      *config.Config
	decls    *decl.Decls
	opts     *decl.Options
	projects []*project
}

// New selects the projects cfg.Targets needs and resolves everything the
// rules of each project depend on. cfg must have been validated.
func New(cfg *config.Config, d *decl.Decls, opts *decl.Options) (*Generator, error) {
	selected, err := targets.Select(d, cfg.Targets)
	if err != nil {
		return nil, err
	}

	for _, key := range opts.Keys() {
		if key != decl.AllProjects && !d.IsProject(key) {
			log.Warnf("ignoring options for %q: not a project in %s", key, decl.DepsFile)
		}
	}

	g := &Generator{cfg: cfg, decls: d, opts: opts}
	for _, e := range selected {
		p, err := g.newProject(e)
		if err != nil {
			return nil, err
		}
		g.projects = append(g.projects, p)
	}
	return g, nil
}

func (g *Generator) newProject(e decl.Entry) (*project, error) {
	kind, err := buildsys.ParseKind(e.Name, g.decls.BuildSystems[e.Name])
	if err != nil {
		return nil, err
	}
	subdir, checkout := g.decls.Checkout(e.Name)
	p := &project{
		name:     e.Name,
		deps:     e.Values,
		checkout: checkout,
		subdir:   subdir,
		virtual:  checkout != e.Name,
		bs:       newBuildSystem(kind),
	}

	if u, ok := g.decls.URLs[e.Name]; ok {
		p.url = u
	} else {
		p.url = g.cfg.URL + "/" + e.Name
	}

	// A virtual sub-component is reached through a symlink named after it.
	srcDir := filepath.Join(g.cfg.SrcDir, subdir)
	if p.virtual {
		srcDir = filepath.Join(g.cfg.SrcDir, e.Name)
	}
	buildDir := filepath.Join(g.cfg.BuildDir, e.Name)

	p.bp = buildsys.Project{
		Name:          e.Name,
		SrcDir:        g.rel(srcDir),
		ConfigSrcDir:  g.rel(srcDir),
		BuildDir:      g.rel(buildDir),
		BuildToSrc:    relTo(buildDir, srcDir),
		ConfigureOpts: g.opts.For(e.Name),
		Prefix:        g.cfg.Prefix,
		Jobs:          g.cfg.Jobs,
		Check:         !g.cfg.NoMakeCheck,
		Debug:         g.cfg.BuildDebug,
		DockerCmd:     g.cfg.DockerCmd,
		SudoInstall:   g.cfg.SudoMakeInstall,
	}
	// Only build systems that write into their sources get a mirror, the
	// others keep reading the checkout.
	if g.cfg.SrcCopy && p.inPlace() {
		mirror := filepath.Join(g.cfg.MakeDir, SrcCopyDir, subdir)
		p.bp.ConfigSrcDir = g.rel(mirror)
		p.bp.BuildToSrc = relTo(buildDir, mirror)
	}
	return p, nil
}

func newBuildSystem(k buildsys.Kind) buildsys.BuildSystem {
	switch k {
	case buildsys.Meson:
		return meson.New()
	case buildsys.Erlang:
		return erlang.New()
	}
	return autotools.New()
}

// Projects returns the selected projects in the order of all.deps.
func (g *Generator) Projects() []string {
	names := make([]string, len(g.projects))
	for i, p := range g.projects {
		names[i] = p.name
	}
	return names
}

// FileSets returns, per make variable that lists files dynamically, the set
// it lists. Roots are relative to the make dir.
func (g *Generator) FileSets() map[string]buildsys.FileSet {
	ret := make(map[string]buildsys.FileSet, 2*len(g.projects))
	for _, p := range g.projects {
		ret[configureFilesVar(p.name)] = p.bs.ConfigureFiles(&p.bp)
		ret[filesVar(p.name)] = p.bs.SourceFiles(&p.bp)
	}
	return ret
}

func configureFilesVar(name string) string { return name + "_configure_files" }
func filesVar(name string) string          { return name + "_files" }

// rel makes path relative to the make dir, where make runs.
func (g *Generator) rel(path string) string {
	return relTo(g.cfg.MakeDir, path)
}

func relTo(base, path string) string {
	r, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return r
}

// self returns how the plan invokes this program.
func (g *Generator) self() string {
	s := g.cfg.Self
	if !strings.ContainsRune(s, filepath.Separator) {
		return s
	}
	s = g.rel(s)
	if !strings.ContainsRune(s, filepath.Separator) {
		s = "." + string(filepath.Separator) + s
	}
	return s
}

func (p *project) String() string {
	return fmt.Sprintf("%s (%s)", p.name, p.bs.Kind())
}
