// Package status tells which stage markers of a plan are out of date, the
// way make would decide it, without running anything.
package status

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/osmocom/osmo-dev/internal/buildsys"
	"github.com/osmocom/osmo-dev/internal/makefile"
	"github.com/osmocom/osmo-dev/internal/par"
)

// Stale explains why one target would be remade.
type Stale struct {
	Target string

	// Missing is set if the target does not exist.
	Missing bool
	// Remade lists prerequisites that are remade first.
	Remade []string
	// Newer lists prerequisites that are newer than the target.
	Newer []string
	// Absent lists prerequisites that neither exist nor have a rule.
	Absent []string
}

func (s Stale) String() string {
	var why []string
	if s.Missing {
		why = append(why, "does not exist")
	}
	if len(s.Absent) > 0 {
		why = append(why, "missing "+strings.Join(s.Absent, ", "))
	}
	if len(s.Remade) > 0 {
		why = append(why, "after "+strings.Join(s.Remade, ", "))
	}
	if len(s.Newer) > 0 {
		why = append(why, "older than "+strings.Join(s.Newer, ", "))
	}
	return s.Target + ": " + strings.Join(why, "; ")
}

// CycleError reports a dependency cycle among the rules of a plan.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

// Evaluator evaluates a plan against the directory make runs in.
type Evaluator struct {
	// Dir is the directory make runs in, target and prerequisite paths are
	// relative to it.
	Dir string
	// Sets resolves the "$(var)" prerequisites that list files dynamically.
	Sets map[string]buildsys.FileSet
	// Jobs bounds the number of file sets scanned at once.
	Jobs int
}

type node struct {
	stale   bool
	exists  bool
	mtime   time.Time
	visited bool
	done    bool
}

type eval struct {
	*Evaluator
	rules map[string]*makefile.Rule
	files map[string][]string
	nodes map[string]*node
	stack []string
	out   []Stale
}

// Evaluate returns the stale non-phony targets of plan, in plan order.
func (e *Evaluator) Evaluate(plan *makefile.File) ([]Stale, error) {
	ev := &eval{
		Evaluator: e,
		rules:     make(map[string]*makefile.Rule),
		nodes:     make(map[string]*node),
	}
	var order []string
	for _, r := range plan.Rules() {
		for _, t := range r.Targets {
			ev.rules[t] = r
			if !r.Phony {
				order = append(order, t)
			}
		}
	}

	var err error
	if ev.files, err = e.scan(plan.Rules()); err != nil {
		return nil, err
	}

	for _, t := range order {
		if _, err := ev.visit(t); err != nil {
			return nil, err
		}
	}
	stale := make(map[string]Stale, len(ev.out))
	for _, s := range ev.out {
		stale[s.Target] = s
	}
	var ret []Stale
	for _, t := range order {
		if s, ok := stale[t]; ok {
			ret = append(ret, s)
		}
	}
	return ret, nil
}

// scan resolves every file set referenced by the rules, in parallel.
func (e *Evaluator) scan(rules []*makefile.Rule) (map[string][]string, error) {
	var w par.Work[string]
	for _, r := range rules {
		for _, p := range r.Prereqs {
			if name, ok := varRef(p); ok {
				w.Add(name)
			}
		}
	}

	var mu sync.Mutex
	files := make(map[string][]string)
	jobs := e.Jobs
	if jobs < 1 {
		jobs = 1
	}
	err := w.Do(jobs, func(name string) error {
		set, ok := e.Sets[name]
		if !ok {
			return fmt.Errorf("no file set for $(%s)", name)
		}
		list, err := set.Walk(e.Dir)
		if err != nil {
			return fmt.Errorf("scanning $(%s): %w", name, err)
		}
		mu.Lock()
		files[name] = list
		mu.Unlock()
		return nil
	})
	return files, err
}

func varRef(s string) (string, bool) {
	if strings.HasPrefix(s, "$(") && strings.HasSuffix(s, ")") {
		return s[2 : len(s)-1], true
	}
	return "", false
}

func (ev *eval) prereqs(r *makefile.Rule) []string {
	var ret []string
	for _, p := range r.Prereqs {
		if name, ok := varRef(p); ok {
			ret = append(ret, ev.files[name]...)
			continue
		}
		ret = append(ret, p)
	}
	return ret
}

func (ev *eval) stat(target string) (bool, time.Time, error) {
	fi, err := os.Stat(filepath.Join(ev.Dir, target))
	if errors.Is(err, fs.ErrNotExist) {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, err
	}
	return true, fi.ModTime(), nil
}

// visit decides whether target is remade, after deciding it for all of its
// prerequisites.
func (ev *eval) visit(target string) (*node, error) {
	n := ev.nodes[target]
	if n == nil {
		n = &node{}
		ev.nodes[target] = n
	}
	if n.done {
		return n, nil
	}
	if n.visited {
		i := len(ev.stack) - 1
		for ev.stack[i] != target {
			i--
		}
		path := append(append([]string{}, ev.stack[i:]...), target)
		return nil, &CycleError{Path: path}
	}
	n.visited = true
	ev.stack = append(ev.stack, target)
	defer func() { ev.stack = ev.stack[:len(ev.stack)-1] }()

	var err error
	if n.exists, n.mtime, err = ev.stat(target); err != nil {
		return nil, err
	}

	r, ok := ev.rules[target]
	if !ok {
		n.done = true
		return n, nil
	}

	s := Stale{Target: target, Missing: !n.exists && !r.Phony}
	for _, p := range ev.prereqs(r) {
		pn, err := ev.visit(p)
		if err != nil {
			return nil, err
		}
		_, hasRule := ev.rules[p]
		switch {
		case pn.stale:
			s.Remade = append(s.Remade, p)
		case !pn.exists && !hasRule:
			s.Absent = append(s.Absent, p)
		case !r.Phony && n.exists && pn.exists && pn.mtime.After(n.mtime):
			s.Newer = append(s.Newer, p)
		}
	}
	if r.Phony {
		// a phony target is always run, but only what it depends on decides
		// whether anything gets rebuilt
		n.stale = len(s.Remade) > 0
	} else {
		n.stale = s.Missing || len(s.Remade) > 0 || len(s.Newer) > 0 || len(s.Absent) > 0
		if n.stale {
			ev.out = append(ev.out, s)
		}
	}
	n.done = true
	return n, nil
}
