package makefile

import (
	"io"
	"strings"
)

const lineWidth = 80

type makeWriter struct {
	writer io.StringWriter

	justDidBlankLine bool // true if the last operation was a BlankLine
}

func newMakeWriter(writer io.StringWriter) *makeWriter {
	return &makeWriter{writer: writer}
}

func (m *makeWriter) write(ss ...string) error {
	for _, s := range ss {
		if _, err := m.writer.WriteString(s); err != nil {
			return err
		}
	}
	return nil
}

func (m *makeWriter) Comment(comment string) error {
	m.justDidBlankLine = false
	for _, line := range strings.Split(comment, "\n") {
		line = strings.TrimRight("# "+line, " \t")
		if err := m.write(line, "\n"); err != nil {
			return err
		}
	}
	return nil
}

func (m *makeWriter) Assign(name, value string) error {
	m.justDidBlankLine = false
	return m.write(name, " := ", value, "\n")
}

func (m *makeWriter) Rule(r *Rule) error {
	if r.Comment != "" {
		if err := m.Comment(r.Comment); err != nil {
			return err
		}
	}
	m.justDidBlankLine = false

	targets := strings.Join(r.Targets, " ")
	if r.Phony {
		if err := m.write(".PHONY: ", targets, "\n"); err != nil {
			return err
		}
	}

	wrapper := makeWriterWithWrap{makeWriter: m, maxLineLen: lineWidth - len(" \\")}
	wrapper.WriteString(targets + ":")
	for _, p := range r.Prereqs {
		wrapper.WriteStringWithSpace(p)
	}
	if err := wrapper.Flush(); err != nil {
		return err
	}

	for _, c := range r.Recipe {
		if err := m.write("\t", c.String(), "\n"); err != nil {
			return err
		}
	}
	return m.BlankLine()
}

func (m *makeWriter) BlankLine() (err error) {
	// We don't output multiple blank lines in a row.
	if !m.justDidBlankLine {
		m.justDidBlankLine = true
		err = m.write("\n")
	}
	return err
}

// makeWriterWithWrap continues long prerequisite lists on tab indented lines.
type makeWriterWithWrap struct {
	*makeWriter
	maxLineLen int
	writtenLen int
	err        error
}

func (m *makeWriterWithWrap) writeString(s string, space bool) {
	if m.err != nil {
		return
	}

	spaceLen := 0
	if space {
		spaceLen = 1
	}

	if space && m.writtenLen+len(s)+spaceLen > m.maxLineLen {
		if m.err = m.write(" \\\n\t"); m.err != nil {
			return
		}
		m.writtenLen = 8
	} else if space {
		if m.err = m.write(" "); m.err != nil {
			return
		}
		m.writtenLen++
	}

	m.err = m.write(s)
	m.writtenLen += len(s)
}

func (m *makeWriterWithWrap) WriteString(s string) {
	m.writeString(s, false)
}

func (m *makeWriterWithWrap) WriteStringWithSpace(s string) {
	m.writeString(s, true)
}

func (m *makeWriterWithWrap) Flush() error {
	if m.err != nil {
		return m.err
	}
	return m.write("\n")
}
