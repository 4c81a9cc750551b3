package gen

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/qiniu/x/log"

	"github.com/osmocom/osmo-dev/internal/config"
	"github.com/osmocom/osmo-dev/internal/makefile"
	"github.com/osmocom/osmo-dev/internal/targets"
)

// Plan returns the complete Makefile. The same configuration and
// declarations always produce the same plan.
func (g *Generator) Plan() *makefile.File {
	f := &makefile.File{}
	f.Comment("This Makefile was generated by osmo-dev, regenerate it with 'make regen'")
	f.Blank()
	if g.cfg.SrcCopy {
		f.Assign(timeVar, "$(shell date +%s%N)")
		f.Blank()
	}

	def := []string{"all"}
	if len(g.cfg.Targets) > 0 {
		def = g.cfg.Targets
	}
	f.Add(&makefile.Rule{Targets: []string{"default"}, Prereqs: def, Phony: true})

	g.aliasRules(f)
	f.Add(g.allDebugRule(), g.regenRule())

	var clone, clean, install []string
	for _, p := range g.projects {
		clone = append(clone, Marker(p.name, StageClone))
		clean = append(clean, p.name+"-clean")
		install = append(install, Marker(p.name, StageInstall))
	}
	f.Add(
		&makefile.Rule{Comment: "clone all repositories first", Targets: []string{"clone"}, Prereqs: clone, Phony: true},
		&makefile.Rule{Targets: []string{"clean"}, Prereqs: clean, Phony: true},
		&makefile.Rule{Targets: []string{"all"}, Prereqs: []string{"clone", "all-install"}, Phony: true},
		&makefile.Rule{Targets: []string{"all-install"}, Prereqs: install, Phony: true},
	)

	for _, p := range g.projects {
		log.Debugf("generating rules for %v", p)
		g.projectRules(f, p)
	}
	return f
}

// aliasRules adds a rule per convenience target whose projects were all
// selected. Nested convenience targets are flattened, so the prerequisites
// are always projects.
func (g *Generator) aliasRules(f *makefile.File) {
	selected := make(map[string]bool, len(g.projects))
	for _, p := range g.projects {
		selected[p.name] = true
	}

	comment := "Convenience targets"
	for _, a := range g.decls.Aliases {
		members := targets.Expand(g.decls, a.Name)
		ok := len(members) > 0
		for _, m := range members {
			ok = ok && selected[m]
		}
		if !ok {
			log.Debugf("skipping convenience target %s, not all of its projects are selected", a.Name)
			continue
		}
		f.Add(&makefile.Rule{Comment: comment, Targets: []string{a.Name}, Prereqs: members, Phony: true})
		comment = ""
	}
}

func (g *Generator) allDebugRule() *makefile.Rule {
	return &makefile.Rule{
		Comment: "list the files that make a stage outdated, then build",
		Targets: []string{"all_debug"},
		Phony:   true,
		Recipe: []makefile.Command{
			makefile.Cmd(makeCmd, "--dry-run", "-d", "all", makefile.Raw("|"), "grep", "is newer than target").Ignored(),
			makefile.Cmd(makeCmd, "all"),
		},
	}
}

// regenRule re-runs the generator with the parameters of this plan.
func (g *Generator) regenRule() *makefile.Rule {
	return &makefile.Rule{
		Comment: "regenerate this Makefile, in case the deps or opts changed",
		Targets: []string{"regen"},
		Phony:   true,
		Recipe:  []makefile.Command{makefile.Cmd(g.regenArgs())},
	}
}

func (g *Generator) regenArgs() []makefile.Word {
	c := g.cfg
	words := makefile.Lits(g.self(), "gen")
	arg := func(ss ...string) {
		words = append(words, makefile.Break())
		words = append(words, makefile.Lits(ss...)...)
	}

	for _, o := range c.OptsFiles {
		arg(g.rel(o))
	}
	arg("--output", c.Output)
	arg("--src-dir", g.rel(c.SrcDir))
	arg("--make-dir", ".")
	arg("--build-dir", g.rel(c.BuildDir))
	arg("--decls-dir", g.rel(c.DeclsDir))
	arg("--jobs", strconv.Itoa(c.Jobs))
	arg("--url", c.URL)
	if c.PushURL != "" {
		arg("--push-url", c.PushURL)
	}
	if c.Prefix != config.DefaultPrefix {
		arg("--prefix", c.Prefix)
	}
	if c.SudoMakeInstall {
		arg("--sudo-make-install")
	}
	if c.NoLdconfig {
		arg("--no-ldconfig")
	}
	if c.LdconfigWithoutSudo {
		arg("--ldconfig-without-sudo")
	}
	if c.NoMakeCheck {
		arg("--no-make-check")
	}
	if c.DockerCmd != "" {
		arg("--docker-cmd", c.DockerCmd)
	}
	if c.BuildDebug {
		arg("--build-debug")
	}
	if c.AutoDistclean {
		arg("--auto-distclean")
	}
	if c.SrcCopy {
		arg("--autoreconf-in-src-copy")
	}
	if len(c.Targets) > 0 {
		arg("--targets", strings.Join(c.Targets, ","))
	}
	return words
}

// Write writes the plan to its output path. The file is replaced atomically,
// a failed run leaves the previous plan in place.
func (g *Generator) Write() error {
	out := g.cfg.OutputPath()
	if err := os.MkdirAll(g.cfg.MakeDir, 0o755); err != nil {
		return err
	}
	log.Infof("Writing to %s", out)

	tmp, err := os.CreateTemp(g.cfg.MakeDir, "."+filepath.Base(out)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := g.Plan().WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", out, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), out)
}
