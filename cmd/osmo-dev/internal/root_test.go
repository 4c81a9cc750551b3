package internal

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// workspace creates declarations for two projects and one option file.
func workspace(t *testing.T) (root string) {
	t.Helper()
	root = t.TempDir()
	writeFile(t, filepath.Join(root, "etc", "all.deps"), "libosmocore\nosmo-hlr libosmocore\n")
	writeFile(t, filepath.Join(root, "etc", "all.urls"), "")
	writeFile(t, filepath.Join(root, "etc", "all.buildsystems"), "")
	writeFile(t, filepath.Join(root, "default.opts"), "ALL --enable-sanitize\n")
	return root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGen(t *testing.T) {
	root := workspace(t)
	makeDir := filepath.Join(root, "make")

	_, err := execute(t, "gen", "-q",
		"--decls-dir", filepath.Join(root, "etc"),
		"--src-dir", filepath.Join(root, "src"),
		"--make-dir", makeDir,
		"-T", "osmo-hlr",
		filepath.Join(root, "default.opts"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(makeDir, "Makefile"))
	require.NoError(t, err)
	plan := string(data)
	assert.Contains(t, plan, ".make.libosmocore.clone:")
	assert.Contains(t, plan, ".make.osmo-hlr.install:")
	assert.Contains(t, plan, "--enable-sanitize")
	assert.Contains(t, plan, "--targets osmo-hlr")
	assert.Contains(t, plan, "\ndefault: osmo-hlr\n")

	entries, err := os.ReadDir(makeDir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

// regenArgs returns the arguments of the regen recipe in plan, without the
// program name.
func regenArgs(t *testing.T, plan string) []string {
	t.Helper()
	var recipe []string
	lines := strings.Split(plan, "\n")
	for i, line := range lines {
		if line != "regen:" {
			continue
		}
		for _, l := range lines[i+1:] {
			if l == "" {
				break
			}
			recipe = append(recipe, l)
		}
	}
	require.NotEmpty(t, recipe, "no regen rule")
	// what make hands to the shell
	line := strings.ReplaceAll(strings.Join(recipe, "\n"), "\\\n", " ")
	args, err := shellquote.Split(strings.ReplaceAll(line, "$$", "$"))
	require.NoError(t, err)
	require.Greater(t, len(args), 2)
	require.Equal(t, "gen", args[1])
	return args[1:]
}

func TestRegenTwice(t *testing.T) {
	root := workspace(t)
	makeDir := filepath.Join(root, "make")
	out := filepath.Join(makeDir, "Makefile")

	_, err := execute(t, "gen", "-q",
		"--decls-dir", filepath.Join(root, "etc"),
		"--src-dir", filepath.Join(root, "src"),
		"--make-dir", makeDir,
		"--push-url", "ssh://gerrit.example.org:29418",
		"-T", "osmo-hlr",
		"--autoreconf-in-src-copy",
		filepath.Join(root, "default.opts"))
	require.NoError(t, err)
	first, err := os.ReadFile(out)
	require.NoError(t, err)

	// make runs the recipe from the make dir
	chdir(t, makeDir)
	for i := 0; i < 2; i++ {
		plan, err := os.ReadFile(out)
		require.NoError(t, err)
		_, err = execute(t, append(regenArgs(t, string(plan)), "-q")...)
		require.NoError(t, err, "regen round %d", i+1)

		again, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again), "regen round %d", i+1)
	}
}

func TestGenConfigFile(t *testing.T) {
	root := workspace(t)
	writeFile(t, filepath.Join(root, "osmo-dev.yaml"), `
opts: [default.opts]
decls_dir: etc
src_dir: src
make_dir: from-yaml
output: Makefile.yaml
jobs: 3
`)

	override := filepath.Join(root, "from-flag")
	_, err := execute(t, "gen", "-q", "--config", filepath.Join(root, "osmo-dev.yaml"), "-m", override)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(override, "Makefile.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "--jobs 3")
	assert.Contains(t, string(data), "--output Makefile.yaml")
	assert.NoDirExists(t, filepath.Join(root, "from-yaml"))
}

func TestGenUnknownTarget(t *testing.T) {
	root := workspace(t)
	_, err := execute(t, "gen", "-q",
		"--decls-dir", filepath.Join(root, "etc"),
		"--make-dir", filepath.Join(root, "make"),
		"-T", "osmo-nothing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "osmo-nothing")
	assert.NoFileExists(t, filepath.Join(root, "make", "Makefile"))
}

func TestStatus(t *testing.T) {
	root := workspace(t)
	out, err := execute(t, "status", "-q",
		"--decls-dir", filepath.Join(root, "etc"),
		"--src-dir", filepath.Join(root, "src"),
		"--make-dir", filepath.Join(root, "make"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, ".make.libosmocore.clone: does not exist", lines[0])
	assert.Contains(t, out, ".make.osmo-hlr.configure: does not exist; after ")
}

func TestVerboseAndQuiet(t *testing.T) {
	_, err := execute(t, "status", "-v", "-q")
	assert.ErrorContains(t, err, "mutually exclusive")
}

func TestSyncSrc(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found")
	}
	root := t.TempDir()
	src := filepath.Join(root, "src")
	writeFile(t, filepath.Join(src, "libosmocore", "a.c"), "int a;\n")
	git := exec.Command("git", "init", "-q")
	git.Dir = filepath.Join(src, "libosmocore")
	out, err := git.CombinedOutput()
	require.NoError(t, err, string(out))

	dest := filepath.Join(root, "src_copy")
	_, err = execute(t, "sync-src", "-q", "--dest", dest, src, "libosmocore", "1")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dest, "libosmocore", "a.c"))
	require.NoError(t, err)
	assert.Equal(t, "int a;\n", string(data))

	_, err = execute(t, "sync-src", "-q", "--dest", dest, src, "osmo-nothing", "1")
	assert.Error(t, err)
}

func TestRunFailure(t *testing.T) {
	bin, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false not found")
	}
	r := &runner{make: bin, jobs: 2}
	err = r.run([]string{"osmo-hlr"})

	var failure *StageActionFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, []string{"osmo-hlr"}, failure.Targets)
	assert.Equal(t, 1, failure.ExitCode)
	assert.Equal(t, "make osmo-hlr failed with exit code 1", failure.Error())
}

func TestRunCommand(t *testing.T) {
	r := &runner{make: "make", dir: "make-default", jobs: 8}
	assert.Equal(t, []string{"make", "-j", "8", "-C", "make-default", "all", "osmo-hlr"},
		r.command([]string{"all", "osmo-hlr"}).Args)

	if bin, err := exec.LookPath("true"); err == nil {
		r = &runner{make: bin, jobs: 1}
		assert.NoError(t, r.run(nil))
	}
}

// chdir changes the working directory for the rest of the test and restores
// it on cleanup, like testing.T.Chdir.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
