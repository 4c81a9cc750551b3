package makefile

import (
	"bufio"
	"io"
	"slices"
)

// Rule is one make rule.
type Rule struct {
	Comment string
	Targets []string
	Prereqs []string // make syntax, written verbatim
	Phony   bool
	Recipe  []Command
}

// Var is an immediately expanded variable assignment.
type Var struct {
	Name  string
	Value string
}

type nodeKind int

const (
	nodeComment nodeKind = iota
	nodeBlank
	nodeVar
	nodeRule
)

type node struct {
	kind nodeKind
	text string
	v    Var
	rule *Rule
}

// File is an ordered Makefile. Nodes are written in the order they were added.
type File struct {
	nodes []node
}

// Comment adds a comment block.
func (f *File) Comment(text string) {
	f.nodes = append(f.nodes, node{kind: nodeComment, text: text})
}

// Blank adds an empty line.
func (f *File) Blank() {
	f.nodes = append(f.nodes, node{kind: nodeBlank})
}

// Assign adds "name := value".
func (f *File) Assign(name, value string) {
	f.nodes = append(f.nodes, node{kind: nodeVar, v: Var{Name: name, Value: value}})
}

// Add adds rules.
func (f *File) Add(rules ...*Rule) {
	for _, r := range rules {
		f.nodes = append(f.nodes, node{kind: nodeRule, rule: r})
	}
}

// Rules returns the rules in file order.
func (f *File) Rules() []*Rule {
	var ret []*Rule
	for _, n := range f.nodes {
		if n.kind == nodeRule {
			ret = append(ret, n.rule)
		}
	}
	return ret
}

// Vars returns the variable assignments in file order.
func (f *File) Vars() []Var {
	var ret []Var
	for _, n := range f.nodes {
		if n.kind == nodeVar {
			ret = append(ret, n.v)
		}
	}
	return ret
}

// Rule returns the rule that produces target.
func (f *File) Rule(target string) (*Rule, bool) {
	for _, n := range f.nodes {
		if n.kind == nodeRule && slices.Contains(n.rule.Targets, target) {
			return n.rule, true
		}
	}
	return nil, false
}

// WriteTo serializes f.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)
	mw := newMakeWriter(bw)

	for _, n := range f.nodes {
		var err error
		switch n.kind {
		case nodeComment:
			err = mw.Comment(n.text)
		case nodeBlank:
			err = mw.BlankLine()
		case nodeVar:
			err = mw.Assign(n.v.Name, n.v.Value)
		case nodeRule:
			err = mw.Rule(n.rule)
		}
		if err != nil {
			return cw.n, err
		}
	}
	err := bw.Flush()
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
