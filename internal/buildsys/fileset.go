package buildsys

import (
	"errors"
	"io/fs"
	"path"
	"path/filepath"

	"github.com/osmocom/osmo-dev/internal/makefile"
)

// FileSet selects files below Root by base name. A file belongs to the set
// if it matches any Names pattern and no Exclude pattern.
type FileSet struct {
	Root    string
	Names   []string
	Exclude []string
}

// SourcePatterns are the source files shared by all C based projects.
var SourcePatterns = []string{"*.[hc]", "*.py", "*.cpp", "*.tpl", "*.map"}

// Match reports whether a base name belongs to the set.
func (s FileSet) Match(name string) bool {
	for _, pat := range s.Exclude {
		if ok, _ := path.Match(pat, name); ok {
			return false
		}
	}
	for _, pat := range s.Names {
		if ok, _ := path.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// Find returns a find(1) invocation listing the set, following symlinks.
func (s FileSet) Find() []makefile.Word {
	words := makefile.Lits("find", "-L", s.Root)
	words = append(words, makefile.Raw(`\(`))
	for i, pat := range s.Names {
		if i > 0 {
			words = append(words, makefile.Raw("-or"))
		}
		words = append(words, makefile.Lit("-name"), makefile.Lit(pat))
	}
	words = append(words, makefile.Raw(`\)`))
	for _, pat := range s.Exclude {
		words = append(words, makefile.Raw("-and"), makefile.Raw("-not"),
			makefile.Lit("-name"), makefile.Lit(pat))
	}
	return words
}

// ShellVar returns the value of a make variable that lists the set when the
// Makefile is read.
func (s FileSet) ShellVar() string {
	return "$(shell " + makefile.Text(s.Find()) + " 2>/dev/null)"
}

// Walk lists the set as paths joined to Root, resolving Root against base. A
// missing Root yields an empty list. Symlinked sub-directories are not
// descended into and .git directories are skipped.
func (s FileSet) Walk(base string) ([]string, error) {
	root := filepath.Join(base, s.Root)
	resolved, err := filepath.EvalSymlinks(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ret []string
	err = filepath.WalkDir(resolved, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !s.Match(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(resolved, p)
		if err != nil {
			return err
		}
		ret = append(ret, filepath.Join(s.Root, rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}
