package decl

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/qiniu/x/log"
)

// Decls is the full set of declarations that drive generation.
type Decls struct {
	// Projects lists every project with its direct dependencies, in the order
	// of all.deps.
	Projects List

	// URLs overrides the clone URL of a project.
	URLs map[string]string

	// BuildSystems names the build system of a project. Projects without an
	// entry use autotools.
	BuildSystems map[string]string

	// Aliases are convenience targets that expand to projects or other aliases.
	Aliases List

	// Subdirs maps a project to a directory below the source dir, whose first
	// element is the checkout it lives in. If that checkout is another project,
	// the project is a virtual sub-component of it.
	Subdirs map[string]string
}

// DefaultAliases are the convenience targets used when no all.targets file is
// present.
var DefaultAliases = List{
	{Name: "cn", Values: []string{"osmo-ggsn", "osmo-hlr", "osmo-iuh", "osmo-mgw",
		"osmo-msc", "osmo-sgsn", "osmo-sip-connector", "osmo-smlc"}},
	{Name: "cn-bsc", Values: []string{"cn", "osmo-bsc"}},
	{Name: "cn-bsc-nat", Values: []string{"cn", "mobile", "osmo-bsc", "osmo-bsc-nat",
		"osmo-bts", "virtphy"}},
	{Name: "usrp", Values: []string{"cn-bsc", "osmo-bts", "osmo-trx"}},
	{Name: "mobile", Values: []string{"osmocom-bb_layer23"}},
	{Name: "virtphy", Values: []string{"osmocom-bb_virtphy"}},
}

// DefaultSubdirs are the source sub-directories used when no all.subdirs file
// is present.
var DefaultSubdirs = map[string]string{
	"openbsc":            "openbsc/openbsc",
	"osmocom-bb_layer23": "osmocom-bb/src/host/layer23",
	"osmocom-bb_virtphy": "osmocom-bb/src/host/virt_phy",
	"simtrace2_host":     "simtrace2/host",
}

// Load reads the declaration files in dir. all.deps, all.urls and
// all.buildsystems are required.
func Load(dir string) (*Decls, error) {
	d := &Decls{}
	var err error

	if d.Projects, err = ReadList(filepath.Join(dir, DepsFile)); err != nil {
		return nil, err
	}
	if d.URLs, err = ReadDict(filepath.Join(dir, URLsFile)); err != nil {
		return nil, err
	}
	if d.BuildSystems, err = ReadDict(filepath.Join(dir, BuildSystemsFile)); err != nil {
		return nil, err
	}

	d.Aliases, err = ReadList(filepath.Join(dir, TargetsFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Debugf("%s not found, using built-in convenience targets", TargetsFile)
		d.Aliases = DefaultAliases
	case err != nil:
		return nil, err
	}

	d.Subdirs, err = ReadDict(filepath.Join(dir, SubdirsFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Debugf("%s not found, using built-in source sub-directories", SubdirsFile)
		d.Subdirs = DefaultSubdirs
	case err != nil:
		return nil, err
	}

	if err := d.check(dir); err != nil {
		return nil, err
	}
	return d, nil
}

// check rejects names that are both a project and an alias, which would make
// target expansion ambiguous.
func (d *Decls) check(dir string) error {
	idx := d.Projects.index()
	for _, a := range d.Aliases {
		if _, ok := idx[a.Name]; ok {
			return &ConfigError{File: filepath.Join(dir, TargetsFile), Line: a.Line,
				Msg: fmt.Sprintf("convenience target %q shadows a project of the same name", a.Name)}
		}
	}
	return nil
}

// IsProject reports whether name is declared in all.deps.
func (d *Decls) IsProject(name string) bool {
	_, ok := d.Projects.Lookup(name)
	return ok
}

// Checkout returns the directory, relative to the source dir, that holds the
// sources of project, and the checkout (first path element) it belongs to.
func (d *Decls) Checkout(project string) (dir, checkout string) {
	dir = project
	if sub, ok := d.Subdirs[project]; ok {
		dir = filepath.ToSlash(filepath.Clean(sub))
	} else if parent, rest, ok := d.conventionParent(project); ok {
		dir = parent + "/" + rest
	}
	checkout, _, _ = strings.Cut(dir, "/")
	return dir, checkout
}

// Parent returns the project whose checkout a virtual sub-component lives in.
func (d *Decls) Parent(project string) (string, bool) {
	_, checkout := d.Checkout(project)
	if checkout == project {
		return "", false
	}
	return checkout, true
}

// conventionParent applies the "parent_component" naming convention to
// projects that have no explicit all.subdirs entry.
func (d *Decls) conventionParent(project string) (parent, rest string, ok bool) {
	i := strings.LastIndexByte(project, '_')
	if i <= 0 || i == len(project)-1 {
		return "", "", false
	}
	parent = project[:i]
	if !d.IsProject(parent) {
		return "", "", false
	}
	return parent, project[i+1:], true
}
