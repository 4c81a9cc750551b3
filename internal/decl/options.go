package decl

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/qiniu/x/log"
)

// AllProjects is the option key whose flags apply to every project.
const AllProjects = "ALL"

// Options holds configure flags per project key, concatenated across all
// option files in the order they were read.
type Options struct {
	keys  []string
	flags map[string][]string
	files []string
}

// NewOptions returns an empty option set.
func NewOptions() *Options {
	return &Options{flags: make(map[string][]string)}
}

// Add appends flags for key.
func (o *Options) Add(key string, flags ...string) {
	if _, ok := o.flags[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.flags[key] = append(o.flags[key], flags...)
}

// For returns the resolved flags of project: the AllProjects flags followed by
// the project specific ones. Order matters, later flags override earlier ones.
func (o *Options) For(project string) []string {
	var ret []string
	ret = append(ret, o.flags[AllProjects]...)
	if project != AllProjects {
		ret = append(ret, o.flags[project]...)
	}
	return ret
}

// Keys returns every key that has flags, in first-seen order.
func (o *Options) Keys() []string {
	return slices.Clone(o.keys)
}

// Files returns the option files that were merged, in processing order.
func (o *Options) Files() []string {
	return slices.Clone(o.files)
}

// ReadOptions merges the given option files. Files are processed in
// lexicographic order so the result does not depend on argument order.
// A *.deps file passed by mistake is skipped with a warning.
func ReadOptions(paths ...string) (*Options, error) {
	sorted := slices.Clone(paths)
	slices.Sort(sorted)

	o := NewOptions()
	for _, path := range sorted {
		if strings.HasSuffix(path, ".deps") {
			log.Warnf("ignoring %s: the dependency graph always comes from %s", path, DepsFile)
			continue
		}
		err := scan(path, func(line int, tokens []string) error {
			o.Add(tokens[0], tokens[1:]...)
			return nil
		})
		if err != nil {
			return nil, err
		}
		o.files = append(o.files, path)
	}
	return o, nil
}

// OptsName returns the name an option file contributes to a default make
// directory name, e.g. "iu" for "/path/to/iu.opts".
func OptsName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".opts")
}
