package gen

import (
	"path/filepath"

	"github.com/osmocom/osmo-dev/internal/makefile"
)

var (
	makeCmd  = makefile.Raw("$(MAKE)")
	target   = makefile.Raw("$@")
	timeVar  = "TIME_START"
	timeWord = makefile.Raw("$(" + timeVar + ")")
)

func banner() makefile.Command {
	return makefile.Cmd("printf", `\n\n\n===== %s\n\n`, target).Quiet()
}

// finish flushes written files to disk before the marker claims success.
func finish() []makefile.Command {
	return []makefile.Command{
		makefile.Cmd("sync"),
		makefile.Cmd("touch", target),
	}
}

func stage(p *project, name string, prereqs []string, recipe ...[]makefile.Command) *makefile.Rule {
	r := &makefile.Rule{
		Targets: []string{Marker(p.name, name)},
		Prereqs: prereqs,
	}
	for _, cmds := range recipe {
		r.Recipe = append(r.Recipe, cmds...)
	}
	r.Recipe = append(r.Recipe, finish()...)
	return r
}

// projectRules returns the variables and rules of one project.
func (g *Generator) projectRules(f *makefile.File, p *project) {
	f.Comment("### " + p.name + " ###")
	f.Blank()
	f.Assign(configureFilesVar(p.name), p.bs.ConfigureFiles(&p.bp).ShellVar())
	f.Assign(filesVar(p.name), p.bs.SourceFiles(&p.bp).ShellVar())
	f.Blank()

	f.Add(g.cloneRule(p))
	prev := Marker(p.name, StageClone)
	if r := g.autoconfRule(p); r != nil {
		f.Add(r)
		prev = Marker(p.name, StageAutoconf)
	}
	f.Add(
		g.configureRule(p, prev),
		g.buildRule(p),
		g.installRule(p),
		g.reinstallRule(p),
		g.cleanRule(p),
		g.distcleanRule(p),
		&makefile.Rule{
			Targets: []string{p.name},
			Prereqs: []string{Marker(p.name, StageInstall)},
			Phony:   true,
		},
	)
}

func (g *Generator) cloneRule(p *project) *makefile.Rule {
	src := g.rel(g.cfg.SrcDir)

	if p.virtual {
		link := filepath.Join(src, p.name)
		dest := p.subdir
		return stage(p, StageClone, []string{Marker(p.checkout, StageClone)}, []makefile.Command{
			banner(),
			makefile.Cmd("test", "-L", link, makefile.Raw("||"), "ln", "-s", dest, link),
		})
	}

	dir := filepath.Join(src, p.checkout)
	clone := makefile.Cmd(makefile.Raw("("),
		"git", "-C", src, "clone", "--recurse-submodules", p.url, p.checkout)
	if _, override := g.decls.URLs[p.name]; !override && g.cfg.PushURL != "" {
		clone.Words = append(clone.Words, makefile.Raw("&&"))
		clone.Words = append(clone.Words, makefile.Lits(
			"git", "-C", dir, "remote", "set-url", "--push", "origin", g.cfg.PushURL+"/"+p.name)...)
	}
	clone.Words = append(clone.Words, makefile.Raw(")"))

	return stage(p, StageClone, nil, []makefile.Command{
		banner(),
		makefile.Cmd("test", "-d", src, makefile.Raw("||"), "mkdir", "-p", src),
		makefile.Cmd(append(makefile.Lits("test", "-d", dir), makefile.Raw("||")), clone.Words),
	})
}

// inPlace reports whether the build system writes configure results into
// the source tree, which then needs a distclean before an out of tree build.
func (p *project) inPlace() bool {
	return p.bs.Prepare(&p.bp) != nil
}

// distcleanGuard runs the project's distclean first if its checkout was
// configured in place, then remakes the given prerequisites.
func (g *Generator) distcleanGuard(p *project, remake ...string) []makefile.Command {
	if !g.cfg.AutoDistclean || !p.inPlace() {
		return nil
	}
	c := makefile.Cmd("if", "test", "-e", filepath.Join(p.bp.SrcDir, "config.status"),
		makefile.Raw(";"), "then", makeCmd, p.name+"-distclean", remake, makefile.Raw(";"), "fi")
	return []makefile.Command{c}
}

// syncSrc refreshes the source mirror of the project's checkout. All syncs of
// one make invocation share a token, so each mirror is synced at most once.
func (g *Generator) syncSrc(p *project) []makefile.Command {
	if !g.cfg.SrcCopy || !p.inPlace() {
		return nil
	}
	return []makefile.Command{makefile.Cmd(g.self(), "sync-src", "--dest", SrcCopyDir,
		g.rel(g.cfg.SrcDir), p.checkout, timeWord)}
}

func (g *Generator) autoconfRule(p *project) *makefile.Rule {
	prepare := p.bs.Prepare(&p.bp)
	if prepare == nil {
		return nil
	}
	prereqs := append([]string{Marker(p.name, StageClone)}, p.bs.PrepareInputs(&p.bp)...)
	return stage(p, StageAutoconf, prereqs,
		g.distcleanGuard(p),
		[]makefile.Command{banner()},
		g.syncSrc(p),
		prepare)
}

func (g *Generator) configureRule(p *project, prev string) *makefile.Rule {
	prereqs := []string{prev}
	for _, dep := range p.deps {
		prereqs = append(prereqs, Marker(dep, StageInstall))
	}
	prereqs = append(prereqs, "$("+configureFilesVar(p.name)+")")

	var wipe []makefile.Command
	configure := p.bs.Configure(&p.bp)
	if configure != nil {
		wipe = []makefile.Command{
			makefile.Cmd("chmod", "-R", "ug+w", p.bp.BuildDir).Ignored(),
			makefile.Cmd("rm", "-rf", p.bp.BuildDir).Ignored(),
			makefile.Cmd("mkdir", "-p", p.bp.BuildDir),
		}
	}
	return stage(p, StageConfigure, prereqs,
		g.distcleanGuard(p, prev),
		[]makefile.Command{banner()},
		g.syncSrc(p),
		wipe,
		configure)
}

func (g *Generator) buildRule(p *project) *makefile.Rule {
	prereqs := []string{Marker(p.name, StageConfigure), "$(" + filesVar(p.name) + ")"}
	return stage(p, StageBuild, prereqs,
		g.distcleanGuard(p, Marker(p.name, StageConfigure)),
		[]makefile.Command{banner()},
		g.syncSrc(p),
		p.bs.Build(&p.bp))
}

func (g *Generator) installRule(p *project) *makefile.Rule {
	var ldconfig []makefile.Command
	if cmd := g.cfg.Ldconfig(); cmd != nil {
		ldconfig = append(ldconfig, makefile.Cmd(cmd))
	}
	return stage(p, StageInstall, []string{Marker(p.name, StageBuild)},
		[]makefile.Command{banner()},
		p.bs.Install(&p.bp),
		ldconfig)
}

// reinstallRule installs again without checking any marker, after the
// dependencies have been reinstalled the same way.
func (g *Generator) reinstallRule(p *project) *makefile.Rule {
	var prereqs []string
	for _, dep := range p.deps {
		prereqs = append(prereqs, dep+"-reinstall")
	}
	return &makefile.Rule{
		Targets: []string{p.name + "-reinstall"},
		Prereqs: prereqs,
		Phony:   true,
		Recipe:  p.bs.Install(&p.bp),
	}
}

func (g *Generator) cleanRule(p *project) *makefile.Rule {
	recipe := []makefile.Command{
		banner(),
		makefile.Cmd("chmod", "-R", "ug+w", p.bp.BuildDir).Ignored(),
		makefile.Cmd("rm", "-rf", p.bp.BuildDir).Ignored(),
	}
	if g.cfg.SrcCopy && p.inPlace() && !p.virtual {
		recipe = append(recipe, makefile.Cmd("rm", "-rf", filepath.Join(SrcCopyDir, p.checkout)).Ignored())
	}
	recipe = append(recipe, makefile.Cmd("rm", "-f", makefile.Raw(Marker(p.name, "*"))).Ignored())
	return &makefile.Rule{
		Targets: []string{p.name + "-clean"},
		Phony:   true,
		Recipe:  recipe,
	}
}

func (g *Generator) distcleanRule(p *project) *makefile.Rule {
	return &makefile.Rule{
		Targets: []string{p.name + "-distclean"},
		Prereqs: []string{p.name + "-clean"},
		Phony:   true,
		Recipe:  append([]makefile.Command{banner()}, p.bs.Distclean(&p.bp)...),
	}
}
