// Package targets narrows the project graph down to what a set of requested
// targets needs.
package targets

import (
	"fmt"

	"github.com/osmocom/osmo-dev/internal/decl"
)

// UnknownProjectError reports a requested or depended-upon name that is
// neither a project nor a convenience target.
type UnknownProjectError struct {
	Name       string
	RequiredBy string // empty for names requested directly
}

func (e *UnknownProjectError) Error() string {
	if e.RequiredBy == "" {
		return fmt.Sprintf("unknown project or target %q", e.Name)
	}
	return fmt.Sprintf("unknown project %q, required by %q", e.Name, e.RequiredBy)
}

type item struct {
	name string
	from string
	dep  bool // a dependency edge, which must name a project
}

// Select returns the projects of d needed to build requested, in the order of
// all.deps. The result is closed under dependencies: every dependency of a
// selected project, and the parent checkout of a selected virtual
// sub-component, is selected too. With no requested targets every project is
// selected, after checking that all dependencies are declared.
func Select(d *decl.Decls, requested []string) (decl.List, error) {
	queue := make([]item, 0, len(requested))
	if len(requested) == 0 {
		for _, p := range d.Projects {
			queue = append(queue, item{name: p.Name})
		}
	} else {
		for _, name := range requested {
			queue = append(queue, item{name: name})
		}
	}

	selected := make(map[string]bool)
	expanded := make(map[string]bool)
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]

		if alias, ok := d.Aliases.Lookup(it.name); ok && !it.dep {
			if expanded[it.name] {
				continue
			}
			expanded[it.name] = true
			for _, v := range alias.Values {
				queue = append(queue, item{name: v, from: it.name})
			}
			continue
		}

		p, ok := d.Projects.Lookup(it.name)
		if !ok {
			return nil, &UnknownProjectError{Name: it.name, RequiredBy: it.from}
		}
		if selected[p.Name] {
			continue
		}
		selected[p.Name] = true

		if parent, ok := d.Parent(p.Name); ok && !selected[parent] {
			queue = append(queue, item{name: parent, from: p.Name, dep: true})
		}
		for _, dep := range p.Values {
			if !selected[dep] {
				queue = append(queue, item{name: dep, from: p.Name, dep: true})
			}
		}
	}

	var ret decl.List
	for _, p := range d.Projects {
		if selected[p.Name] {
			ret = append(ret, p)
		}
	}
	return ret, nil
}

// Expand resolves a convenience target to the concrete projects it stands
// for, in first-seen order, with nested aliases flattened. A name that is not
// an alias expands to itself.
func Expand(d *decl.Decls, name string) []string {
	var ret []string
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		alias, ok := d.Aliases.Lookup(n)
		if !ok {
			ret = append(ret, n)
			return
		}
		for _, v := range alias.Values {
			walk(v)
		}
	}
	walk(name)
	return ret
}
