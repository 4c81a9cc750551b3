// Package config holds the parameters of one generation run.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/osmocom/osmo-dev/internal/decl"
)

// Defaults of the string options.
const (
	DefaultSrcDir   = "./src"
	DefaultURL      = "https://gerrit.osmocom.org"
	DefaultOutput   = "Makefile"
	DefaultPrefix   = "/usr/local"
	DefaultDeclsDir = "etc"
)

// Config is the complete set of generation parameters. It is built once by
// the command line and passed to every stage of generation.
type Config struct {
	// OptsFiles are the option files to merge, sorted once validated.
	OptsFiles []string

	MakeDir  string
	SrcDir   string
	BuildDir string
	DeclsDir string

	URL     string
	PushURL string

	// Output is the plan file name inside MakeDir.
	Output string
	Jobs   int

	SudoMakeInstall     bool
	NoLdconfig          bool
	LdconfigWithoutSudo bool
	NoMakeCheck         bool
	DockerCmd           string
	BuildDebug          bool
	AutoDistclean       bool
	Prefix              string

	// SrcCopy runs autoreconf and configure in a synced mirror of the sources
	// instead of the checkout.
	SrcCopy bool

	// Targets restricts generation to these projects and convenience targets.
	Targets []string

	// Self is how the generated plan invokes this program, for regen and
	// sync-src rules.
	Self string
}

// Default returns a Config with the documented defaults.
func Default() *Config {
	return &Config{
		SrcDir:   DefaultSrcDir,
		URL:      DefaultURL,
		Output:   DefaultOutput,
		Prefix:   DefaultPrefix,
		DeclsDir: DefaultDeclsDir,
		Self:     "osmo-dev",
	}
}

// Validate normalizes c in place: directories become absolute, derived
// defaults are filled in and option files are sorted.
func (c *Config) Validate() error {
	if c.Jobs < 0 {
		return fmt.Errorf("invalid number of jobs: %d", c.Jobs)
	}
	if c.Jobs == 0 {
		c.Jobs = runtime.NumCPU()
	}
	if c.Output == "" || strings.ContainsRune(c.Output, filepath.Separator) {
		return fmt.Errorf("invalid output file name %q", c.Output)
	}
	if c.Prefix == "" {
		return errors.New("install prefix must not be empty")
	}
	if c.SrcDir == "" {
		c.SrcDir = DefaultSrcDir
	}
	if c.DeclsDir == "" {
		c.DeclsDir = DefaultDeclsDir
	}
	c.URL = strings.TrimRight(c.URL, "/")
	c.PushURL = strings.TrimRight(c.PushURL, "/")
	if c.URL == "" {
		return errors.New("clone URL must not be empty")
	}

	var err error
	for i, f := range c.OptsFiles {
		if c.OptsFiles[i], err = filepath.Abs(f); err != nil {
			return err
		}
	}
	slices.Sort(c.OptsFiles)
	c.OptsFiles = slices.Compact(c.OptsFiles)

	if c.MakeDir == "" {
		c.MakeDir = "make-" + c.optsNames()
	}
	for _, p := range []*string{&c.MakeDir, &c.SrcDir, &c.DeclsDir} {
		if *p, err = filepath.Abs(*p); err != nil {
			return err
		}
	}
	if c.BuildDir == "" {
		c.BuildDir = c.MakeDir
	} else if c.BuildDir, err = filepath.Abs(c.BuildDir); err != nil {
		return err
	}

	var targets []string
	for _, t := range c.Targets {
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" && !slices.Contains(targets, s) {
				targets = append(targets, s)
			}
		}
	}
	c.Targets = targets
	return nil
}

// OutputPath is where the plan is written.
func (c *Config) OutputPath() string {
	return filepath.Join(c.MakeDir, c.Output)
}

// Ldconfig returns the dynamic linker cache refresh command, or nil if it is
// disabled.
func (c *Config) Ldconfig() []string {
	switch {
	case c.NoLdconfig:
		return nil
	case c.LdconfigWithoutSudo:
		return []string{"ldconfig"}
	}
	return []string{"sudo", "ldconfig"}
}

func (c *Config) optsNames() string {
	var names []string
	for _, f := range c.OptsFiles {
		if strings.HasSuffix(f, ".deps") {
			continue
		}
		names = append(names, decl.OptsName(f))
	}
	return strings.Join(names, "+")
}

// File is the YAML form of a Config. Keys match the long flag names with
// dashes replaced by underscores. Absent keys leave the Config untouched.
type File struct {
	Opts                []string `yaml:"opts"`
	MakeDir             *string  `yaml:"make_dir"`
	SrcDir              *string  `yaml:"src_dir"`
	BuildDir            *string  `yaml:"build_dir"`
	DeclsDir            *string  `yaml:"decls_dir"`
	URL                 *string  `yaml:"url"`
	PushURL             *string  `yaml:"push_url"`
	Output              *string  `yaml:"output"`
	Jobs                *int     `yaml:"jobs"`
	SudoMakeInstall     *bool    `yaml:"sudo_make_install"`
	NoLdconfig          *bool    `yaml:"no_ldconfig"`
	LdconfigWithoutSudo *bool    `yaml:"ldconfig_without_sudo"`
	NoMakeCheck         *bool    `yaml:"no_make_check"`
	DockerCmd           *string  `yaml:"docker_cmd"`
	BuildDebug          *bool    `yaml:"build_debug"`
	AutoDistclean       *bool    `yaml:"auto_distclean"`
	Prefix              *string  `yaml:"prefix"`
	SrcCopy             *bool    `yaml:"autoreconf_in_src_copy"`
	Targets             []string `yaml:"targets"`
}

// LoadFile reads a YAML defaults file. Relative directories in it are
// resolved against the directory of the file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Dir(path)
	rel := func(p *string) {
		if p != nil && *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	for _, p := range []*string{f.MakeDir, f.SrcDir, f.BuildDir, f.DeclsDir} {
		rel(p)
	}
	for i := range f.Opts {
		rel(&f.Opts[i])
	}
	return &f, nil
}

// Merge copies the values set in f into c, except for the options that
// changed reports as given explicitly. changed is called with long flag
// names; "opts" stands for the positional option files.
func (f *File) Merge(c *Config, changed func(name string) bool) {
	str := func(name string, dst *string, v *string) {
		if v != nil && !changed(name) {
			*dst = *v
		}
	}
	flag := func(name string, dst *bool, v *bool) {
		if v != nil && !changed(name) {
			*dst = *v
		}
	}

	if f.Opts != nil && !changed("opts") {
		c.OptsFiles = slices.Clone(f.Opts)
	}
	str("make-dir", &c.MakeDir, f.MakeDir)
	str("src-dir", &c.SrcDir, f.SrcDir)
	str("build-dir", &c.BuildDir, f.BuildDir)
	str("decls-dir", &c.DeclsDir, f.DeclsDir)
	str("url", &c.URL, f.URL)
	str("push-url", &c.PushURL, f.PushURL)
	str("output", &c.Output, f.Output)
	if f.Jobs != nil && !changed("jobs") {
		c.Jobs = *f.Jobs
	}
	flag("sudo-make-install", &c.SudoMakeInstall, f.SudoMakeInstall)
	flag("no-ldconfig", &c.NoLdconfig, f.NoLdconfig)
	flag("ldconfig-without-sudo", &c.LdconfigWithoutSudo, f.LdconfigWithoutSudo)
	flag("no-make-check", &c.NoMakeCheck, f.NoMakeCheck)
	str("docker-cmd", &c.DockerCmd, f.DockerCmd)
	flag("build-debug", &c.BuildDebug, f.BuildDebug)
	flag("auto-distclean", &c.AutoDistclean, f.AutoDistclean)
	str("prefix", &c.Prefix, f.Prefix)
	flag("autoreconf-in-src-copy", &c.SrcCopy, f.SrcCopy)
	if f.Targets != nil && !changed("targets") {
		c.Targets = slices.Clone(f.Targets)
	}
}
