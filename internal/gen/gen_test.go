package gen

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osmocom/osmo-dev/internal/buildsys"
	"github.com/osmocom/osmo-dev/internal/config"
	"github.com/osmocom/osmo-dev/internal/decl"
	"github.com/osmocom/osmo-dev/internal/makefile"
	"github.com/osmocom/osmo-dev/internal/targets"
)

func testDecls() *decl.Decls {
	return &decl.Decls{
		Projects: decl.List{
			{Name: "libosmocore"},
			{Name: "libosmo-abis", Values: []string{"libosmocore"}},
			{Name: "osmo-bsc", Values: []string{"libosmo-abis"}},
			{Name: "osmo-hlr", Values: []string{"libosmocore"}},
			{Name: "osmo-gsm-shark", Values: []string{"libosmocore"}},
			{Name: "osmocom-bb", Values: []string{"libosmocore"}},
			{Name: "osmocom-bb_layer23", Values: []string{"libosmocore"}},
		},
		URLs:         map[string]string{"osmo-gsm-shark": "https://example.org/shark.git"},
		BuildSystems: map[string]string{"osmo-gsm-shark": "meson"},
		Aliases: decl.List{
			{Name: "core", Values: []string{"libosmocore", "libosmo-abis"}},
			{Name: "bsc", Values: []string{"core", "osmo-bsc"}},
			{Name: "mobile", Values: []string{"osmocom-bb_layer23"}},
		},
		Subdirs: map[string]string{},
	}
}

func testOptions() *decl.Options {
	o := decl.NewOptions()
	o.Add(decl.AllProjects, "--enable-sanitize")
	o.Add("osmo-bsc", "--enable-werror")
	o.Add("no-such-project", "--with-nothing")
	return o
}

func testConfig() *config.Config {
	c := config.Default()
	c.MakeDir = "/work/make"
	c.SrcDir = "/work/src"
	c.BuildDir = "/work/make"
	c.DeclsDir = "/work/etc"
	c.OptsFiles = []string{"/work/etc/default.opts"}
	c.Jobs = 4
	return c
}

func newGen(t *testing.T, c *config.Config) *Generator {
	t.Helper()
	g, err := New(c, testDecls(), testOptions())
	require.NoError(t, err)
	return g
}

func render(t *testing.T, f *makefile.File) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func recipe(r *makefile.Rule) []string {
	var ret []string
	for _, c := range r.Recipe {
		ret = append(ret, c.String())
	}
	return ret
}

func rule(t *testing.T, f *makefile.File, target string) *makefile.Rule {
	t.Helper()
	r, ok := f.Rule(target)
	require.True(t, ok, "no rule for %s", target)
	return r
}

func TestStageChain(t *testing.T) {
	f := newGen(t, testConfig()).Plan()

	tests := []struct {
		target  string
		prereqs []string
	}{
		{".make.libosmocore.clone", nil},
		{".make.libosmocore.autoconf", []string{".make.libosmocore.clone", "../src/libosmocore/configure.ac"}},
		{".make.libosmocore.configure", []string{".make.libosmocore.autoconf", "$(libosmocore_configure_files)"}},
		{".make.osmo-bsc.configure", []string{".make.osmo-bsc.autoconf", ".make.libosmo-abis.install", "$(osmo-bsc_configure_files)"}},
		{".make.osmo-bsc.build", []string{".make.osmo-bsc.configure", "$(osmo-bsc_files)"}},
		{".make.osmo-bsc.install", []string{".make.osmo-bsc.build"}},
		{".make.osmo-gsm-shark.configure", []string{".make.osmo-gsm-shark.clone", ".make.libosmocore.install", "$(osmo-gsm-shark_configure_files)"}},
		{"osmo-bsc-reinstall", []string{"libosmo-abis-reinstall"}},
		{"osmo-bsc-distclean", []string{"osmo-bsc-clean"}},
		{"osmo-bsc", []string{".make.osmo-bsc.install"}},
		{"all", []string{"clone", "all-install"}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			r := rule(t, f, tt.target)
			if diff := cmp.Diff(tt.prereqs, r.Prereqs); diff != "" {
				t.Errorf("prerequisites mismatch (-want +got):\n%s", diff)
			}
		})
	}

	_, ok := f.Rule(".make.osmo-gsm-shark.autoconf")
	assert.False(t, ok, "meson projects have no autoconf stage")

	for _, target := range []string{"osmo-bsc-reinstall", "osmo-bsc-clean", "osmo-bsc-distclean", "osmo-bsc", "all", "clean", "clone", "regen"} {
		assert.True(t, rule(t, f, target).Phony, target)
	}
	for _, target := range []string{".make.osmo-bsc.configure", ".make.osmo-bsc.install"} {
		assert.False(t, rule(t, f, target).Phony, target)
	}
}

func TestRecipes(t *testing.T) {
	f := newGen(t, testConfig()).Plan()

	tests := []struct {
		target string
		want   []string
	}{
		{".make.libosmocore.clone", []string{
			`@printf '\n\n\n===== %s\n\n' $@`,
			"test -d ../src || mkdir -p ../src",
			"test -d ../src/libosmocore || ( git -C ../src clone --recurse-submodules https://gerrit.osmocom.org/libosmocore libosmocore )",
			"sync",
			"touch $@",
		}},
		{".make.osmo-gsm-shark.clone", []string{
			`@printf '\n\n\n===== %s\n\n' $@`,
			"test -d ../src || mkdir -p ../src",
			"test -d ../src/osmo-gsm-shark || ( git -C ../src clone --recurse-submodules https://example.org/shark.git osmo-gsm-shark )",
			"sync",
			"touch $@",
		}},
		{".make.osmo-bsc.autoconf", []string{
			`@printf '\n\n\n===== %s\n\n' $@`,
			"-rm -f ../src/osmo-bsc/.version",
			"cd ../src/osmo-bsc && autoreconf -fi",
			"sync",
			"touch $@",
		}},
		{".make.osmo-bsc.configure", []string{
			`@printf '\n\n\n===== %s\n\n' $@`,
			"-chmod -R ug+w osmo-bsc",
			"-rm -rf osmo-bsc",
			"mkdir -p osmo-bsc",
			"cd osmo-bsc && ../../src/osmo-bsc/configure --prefix=/usr/local --enable-sanitize --enable-werror",
			"sync",
			"touch $@",
		}},
		{".make.osmo-bsc.build", []string{
			`@printf '\n\n\n===== %s\n\n' $@`,
			"$(MAKE) -C osmo-bsc -j 4 check",
			"sync",
			"touch $@",
		}},
		{".make.osmo-bsc.install", []string{
			`@printf '\n\n\n===== %s\n\n' $@`,
			"$(MAKE) -C osmo-bsc install",
			"sudo ldconfig",
			"sync",
			"touch $@",
		}},
		{"osmo-bsc-reinstall", []string{"$(MAKE) -C osmo-bsc install"}},
		{"osmo-bsc-clean", []string{
			`@printf '\n\n\n===== %s\n\n' $@`,
			"-chmod -R ug+w osmo-bsc",
			"-rm -rf osmo-bsc",
			"-rm -f .make.osmo-bsc.*",
		}},
		{"osmo-bsc-distclean", []string{
			`@printf '\n\n\n===== %s\n\n' $@`,
			"$(MAKE) -C ../src/osmo-bsc distclean",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, recipe(rule(t, f, tt.target))); diff != "" {
				t.Errorf("recipe mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	c := testConfig()
	c.PushURL = "ssh://go"
	c.SudoMakeInstall = true
	c.LdconfigWithoutSudo = true
	c.NoMakeCheck = true
	c.BuildDebug = true
	c.AutoDistclean = true
	c.DockerCmd = "docker exec ttcn3"
	c.BuildDir = "/work/build"
	f := newGen(t, c).Plan()

	assert.Equal(t, []string{
		`@printf '\n\n\n===== %s\n\n' $@`,
		"test -d ../src || mkdir -p ../src",
		"test -d ../src/osmo-hlr || ( git -C ../src clone --recurse-submodules https://gerrit.osmocom.org/osmo-hlr osmo-hlr && git -C ../src/osmo-hlr remote set-url --push origin ssh://go/osmo-hlr )",
		"sync",
		"touch $@",
	}, recipe(rule(t, f, ".make.osmo-hlr.clone")))

	// no push URL for projects with their own clone URL
	assert.NotContains(t, strings.Join(recipe(rule(t, f, ".make.osmo-gsm-shark.clone")), "\n"), "set-url")

	assert.Equal(t, []string{
		"if test -e ../src/osmo-hlr/config.status ; then $(MAKE) osmo-hlr-distclean .make.osmo-hlr.autoconf ; fi",
		`@printf '\n\n\n===== %s\n\n' $@`,
		"-chmod -R ug+w ../build/osmo-hlr",
		"-rm -rf ../build/osmo-hlr",
		"mkdir -p ../build/osmo-hlr",
		"cd ../build/osmo-hlr && CFLAGS=-g docker exec ttcn3 ../../src/osmo-hlr/configure --prefix=/usr/local --enable-sanitize",
		"sync",
		"touch $@",
	}, recipe(rule(t, f, ".make.osmo-hlr.configure")))

	assert.Equal(t, []string{
		"if test -e ../src/osmo-hlr/config.status ; then $(MAKE) osmo-hlr-distclean .make.osmo-hlr.configure ; fi",
		`@printf '\n\n\n===== %s\n\n' $@`,
		"docker exec ttcn3 $(MAKE) -C ../build/osmo-hlr -j 4",
		"sync",
		"touch $@",
	}, recipe(rule(t, f, ".make.osmo-hlr.build")))

	assert.Equal(t, []string{
		`@printf '\n\n\n===== %s\n\n' $@`,
		"docker exec ttcn3 sudo $(MAKE) -C ../build/osmo-hlr install",
		"ldconfig",
		"sync",
		"touch $@",
	}, recipe(rule(t, f, ".make.osmo-hlr.install")))

	// reinstall runs the same wrapped install, without markers
	assert.Equal(t, []string{
		"docker exec ttcn3 sudo $(MAKE) -C ../build/osmo-hlr install",
	}, recipe(rule(t, f, "osmo-hlr-reinstall")))

	// meson does not configure in place, no distclean guard
	assert.NotContains(t, strings.Join(recipe(rule(t, f, ".make.osmo-gsm-shark.configure")), "\n"), "config.status")

	c.NoLdconfig = true
	f = newGen(t, c).Plan()
	assert.NotContains(t, strings.Join(recipe(rule(t, f, ".make.osmo-hlr.install")), "\n"), "ldconfig")
}

func TestVirtualSubComponent(t *testing.T) {
	f := newGen(t, testConfig()).Plan()

	r := rule(t, f, ".make.osmocom-bb_layer23.clone")
	assert.Equal(t, []string{".make.osmocom-bb.clone"}, r.Prereqs)
	assert.Equal(t, []string{
		`@printf '\n\n\n===== %s\n\n' $@`,
		"test -L ../src/osmocom-bb_layer23 || ln -s osmocom-bb/layer23 ../src/osmocom-bb_layer23",
		"sync",
		"touch $@",
	}, recipe(r))

	assert.Contains(t, recipe(rule(t, f, ".make.osmocom-bb_layer23.configure")),
		"cd osmocom-bb_layer23 && ../../src/osmocom-bb_layer23/configure --prefix=/usr/local --enable-sanitize")
}

func TestTargetFilter(t *testing.T) {
	c := testConfig()
	c.Targets = []string{"bsc"}
	g := newGen(t, c)
	assert.Equal(t, []string{"libosmocore", "libosmo-abis", "osmo-bsc"}, g.Projects())

	f := g.Plan()
	assert.Equal(t, []string{"bsc"}, rule(t, f, "default").Prereqs)
	assert.Equal(t, []string{"libosmocore", "libosmo-abis"}, rule(t, f, "core").Prereqs)
	assert.Equal(t, []string{"libosmocore", "libosmo-abis", "osmo-bsc"}, rule(t, f, "bsc").Prereqs,
		"nested convenience targets are flattened")
	_, ok := f.Rule("mobile")
	assert.False(t, ok, "mobile needs a project that is not selected")
	_, ok = f.Rule(".make.osmo-hlr.clone")
	assert.False(t, ok)
	assert.Equal(t, []string{".make.libosmocore.install", ".make.libosmo-abis.install", ".make.osmo-bsc.install"},
		rule(t, f, "all-install").Prereqs)

	c.Targets = []string{"mobile"}
	g = newGen(t, c)
	assert.Equal(t, []string{"libosmocore", "osmocom-bb", "osmocom-bb_layer23"}, g.Projects(),
		"a virtual sub-component pulls in its parent checkout")

	c.Targets = []string{"osmo-nonexistent"}
	_, err := New(c, testDecls(), testOptions())
	var uerr *targets.UnknownProjectError
	assert.True(t, errors.As(err, &uerr))
}

func TestUnknownBuildSystem(t *testing.T) {
	d := testDecls()
	d.BuildSystems["osmo-hlr"] = "cmake"
	_, err := New(testConfig(), d, testOptions())
	var berr *buildsys.UnknownBuildSystemError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, "osmo-hlr", berr.Project)
	assert.Equal(t, "cmake", berr.Kind)
}

func TestSrcCopy(t *testing.T) {
	c := testConfig()
	c.SrcCopy = true
	c.Self = "/work/osmo-dev/osmo-dev"
	f := newGen(t, c).Plan()

	assert.Equal(t, []makefile.Var{{Name: "TIME_START", Value: "$(shell date +%s%N)"}}, f.Vars()[:1])

	sync := "../osmo-dev/osmo-dev sync-src --dest src_copy ../src osmo-bsc $(TIME_START)"
	assert.Equal(t, []string{
		`@printf '\n\n\n===== %s\n\n' $@`,
		sync,
		"-rm -f src_copy/osmo-bsc/.version",
		"cd src_copy/osmo-bsc && autoreconf -fi",
		"sync",
		"touch $@",
	}, recipe(rule(t, f, ".make.osmo-bsc.autoconf")))
	assert.Contains(t, recipe(rule(t, f, ".make.osmo-bsc.configure")),
		"cd osmo-bsc && ../src_copy/osmo-bsc/configure --prefix=/usr/local --enable-sanitize --enable-werror")
	assert.Contains(t, recipe(rule(t, f, ".make.osmo-bsc.build")), sync)
	assert.Contains(t, recipe(rule(t, f, "osmo-bsc-clean")), "-rm -rf src_copy/osmo-bsc")

	// the mirror of a virtual sub-component is the one of its parent
	assert.Contains(t, recipe(rule(t, f, ".make.osmocom-bb_layer23.autoconf")),
		"../osmo-dev/osmo-dev sync-src --dest src_copy ../src osmocom-bb $(TIME_START)")
	assert.NotContains(t, recipe(rule(t, f, "osmocom-bb_layer23-clean")), "-rm -rf src_copy/osmocom-bb")

	// meson never writes into its sources and configures from the checkout
	shark := recipe(rule(t, f, ".make.osmo-gsm-shark.configure"))
	assert.Contains(t, shark,
		"cd osmo-gsm-shark && meson setup --prefix=/usr/local --enable-sanitize ../../src/osmo-gsm-shark .")
	for _, target := range []string{".make.osmo-gsm-shark.configure", ".make.osmo-gsm-shark.build", "osmo-gsm-shark-clean"} {
		for _, line := range recipe(rule(t, f, target)) {
			assert.NotContains(t, line, "src_copy", target)
		}
	}

	// source file lists still look at the checkout
	sets := newGen(t, c).FileSets()
	assert.Equal(t, "../src/osmo-bsc", sets["osmo-bsc_files"].Root)
}

func TestRegen(t *testing.T) {
	c := testConfig()
	c.PushURL = "ssh://go"
	c.NoMakeCheck = true
	c.Targets = []string{"osmo-bsc", "osmo-hlr"}
	f := newGen(t, c).Plan()

	want := "osmo-dev gen \\\n" +
		"\t\t../etc/default.opts \\\n" +
		"\t\t--output Makefile \\\n" +
		"\t\t--src-dir ../src \\\n" +
		"\t\t--make-dir . \\\n" +
		"\t\t--build-dir . \\\n" +
		"\t\t--decls-dir ../etc \\\n" +
		"\t\t--jobs 4 \\\n" +
		"\t\t--url https://gerrit.osmocom.org \\\n" +
		"\t\t--push-url ssh://go \\\n" +
		"\t\t--no-make-check \\\n" +
		"\t\t--targets osmo-bsc,osmo-hlr"
	assert.Equal(t, []string{want}, recipe(rule(t, f, "regen")))
}

func TestDeterministic(t *testing.T) {
	dir := t.TempDir()
	c := testConfig()
	c.MakeDir = dir
	c.BuildDir = dir

	var outputs []string
	for i := 0; i < 2; i++ {
		g := newGen(t, c)
		require.NoError(t, g.Write())
		data, err := os.ReadFile(filepath.Join(dir, "Makefile"))
		require.NoError(t, err)
		outputs = append(outputs, string(data))
		assert.Equal(t, render(t, g.Plan()), string(data))
	}
	assert.Equal(t, outputs[0], outputs[1])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")

	assert.True(t, strings.HasPrefix(outputs[0], "# This Makefile was generated by osmo-dev"))
	assert.Contains(t, outputs[0], "\nlibosmocore_files := $(shell find -L ")
}

func TestGlobalRules(t *testing.T) {
	f := newGen(t, testConfig()).Plan()

	assert.Equal(t, []string{"all"}, rule(t, f, "default").Prereqs)
	assert.Equal(t, []string{
		"-$(MAKE) --dry-run -d all | grep 'is newer than target'",
		"$(MAKE) all",
	}, recipe(rule(t, f, "all_debug")))

	// nested convenience targets are flattened to projects
	assert.Equal(t, []string{"libosmocore", "libosmo-abis", "osmo-bsc"}, rule(t, f, "bsc").Prereqs)
	assert.Contains(t, rule(t, f, "all-install").Prereqs, ".make.osmocom-bb_layer23.install")
	assert.Contains(t, rule(t, f, "clean").Prereqs, "osmo-gsm-shark-clean")
}
