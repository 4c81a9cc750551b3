// Package makefile models a generated Makefile as typed variables, rules and
// recipe commands, and serializes that model. Quoting for the shell and
// escaping for make happen in one place, when a Command is rendered.
package makefile

import (
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Word is one token of a recipe command line.
type Word struct {
	text string
	raw  bool
	brk  bool
}

// Lit is a literal shell word. It is shell quoted and has '$' escaped for make
// when rendered.
func Lit(s string) Word { return Word{text: s} }

// Raw is emitted verbatim. Use it for make references such as $(MAKE) or $@
// and for shell operators.
func Raw(s string) Word { return Word{text: s, raw: true} }

// Break continues the command on the next line.
func Break() Word { return Word{brk: true} }

// Lits returns a literal word per string.
func Lits(ss ...string) []Word {
	ws := make([]Word, len(ss))
	for i, s := range ss {
		ws[i] = Lit(s)
	}
	return ws
}

func (w Word) render() string {
	if w.raw {
		return w.text
	}
	return strings.ReplaceAll(shellquote.Join(w.text), "$", "$$")
}

// Command is one recipe line.
type Command struct {
	Words []Word

	// IgnoreError prefixes the line with '-' so make carries on if it fails.
	IgnoreError bool

	// Silent prefixes the line with '@' so make does not echo it.
	Silent bool
}

// Cmd builds a command from parts. A string is a literal word, a Word is used
// as is, and []string / []Word are spread.
func Cmd(parts ...any) Command {
	var c Command
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			c.Words = append(c.Words, Lit(v))
		case Word:
			c.Words = append(c.Words, v)
		case []string:
			c.Words = append(c.Words, Lits(v...)...)
		case []Word:
			c.Words = append(c.Words, v...)
		default:
			panic(fmt.Sprintf("makefile.Cmd: unsupported part %T", p))
		}
	}
	return c
}

// Ignored returns c with IgnoreError set.
func (c Command) Ignored() Command {
	c.IgnoreError = true
	return c
}

// Quiet returns c with Silent set.
func (c Command) Quiet() Command {
	c.Silent = true
	return c
}

// String renders the command as it appears in a recipe, without the leading tab.
func (c Command) String() string {
	var b strings.Builder
	if c.Silent {
		b.WriteByte('@')
	}
	if c.IgnoreError {
		b.WriteByte('-')
	}
	b.WriteString(Text(c.Words))
	return b.String()
}

// Text renders words as a single shell command line.
func Text(words []Word) string {
	var b strings.Builder
	sep := ""
	for _, w := range words {
		if w.brk {
			b.WriteString(" \\\n\t\t")
			sep = ""
			continue
		}
		b.WriteString(sep)
		b.WriteString(w.render())
		sep = " "
	}
	return b.String()
}
