// Copyright 2025 The osmo-dev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package decl reads the whitespace separated declaration files that describe
// the project graph: all.deps, all.urls, all.buildsystems, the optional
// all.targets and all.subdirs, and any number of *.opts files.
package decl

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Declaration file names inside the declarations directory.
const (
	DepsFile         = "all.deps"
	URLsFile         = "all.urls"
	BuildSystemsFile = "all.buildsystems"
	TargetsFile      = "all.targets"
	SubdirsFile      = "all.subdirs"
)

// ConfigError reports a malformed or inconsistent declaration.
type ConfigError struct {
	File string
	Line int // 0 when the error is not tied to a line
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Msg)
}

// Entry is one declaration line: a name followed by its value tokens.
type Entry struct {
	Name   string
	Values []string
	Line   int
}

// List is a declaration file in file order. Output that iterates a List is
// deterministic by construction.
type List []Entry

// Lookup returns the entry declared for name.
func (l List) Lookup(name string) (Entry, bool) {
	for _, e := range l {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Names returns the declared names in file order.
func (l List) Names() []string {
	names := make([]string, len(l))
	for i, e := range l {
		names[i] = e.Name
	}
	return names
}

func (l List) index() map[string]int {
	idx := make(map[string]int, len(l))
	for i, e := range l {
		idx[e.Name] = i
	}
	return idx
}

// scan calls fn for every non-blank, non-comment line of path, split into
// whitespace separated tokens.
func scan(path string, fn func(line int, tokens []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	n := 0
	for s.Scan() {
		n++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(n, strings.Fields(line)); err != nil {
			return err
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// ReadList reads a file of "name token token ..." lines. Zero tokens after
// the name is valid. A name declared twice is a ConfigError.
func ReadList(path string) (List, error) {
	var l List
	seen := make(map[string]int)
	err := scan(path, func(line int, tokens []string) error {
		name := tokens[0]
		if prev, ok := seen[name]; ok {
			return &ConfigError{File: path, Line: line,
				Msg: fmt.Sprintf("%q already declared on line %d", name, prev)}
		}
		seen[name] = line
		l = append(l, Entry{Name: name, Values: tokens[1:], Line: line})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// ReadDict reads a file of "name value" lines, one value per name.
func ReadDict(path string) (map[string]string, error) {
	ret := make(map[string]string)
	err := scan(path, func(line int, tokens []string) error {
		if len(tokens) != 2 {
			return &ConfigError{File: path, Line: line,
				Msg: fmt.Sprintf("expected \"<project> <value>\", got %d tokens", len(tokens))}
		}
		if _, ok := ret[tokens[0]]; ok {
			return &ConfigError{File: path, Line: line,
				Msg: fmt.Sprintf("project %q found twice", tokens[0])}
		}
		ret[tokens[0]] = tokens[1]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}
