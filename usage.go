// Copyright 2021 Jonathan Amsterdam.

package cmdopts

import (
	"fmt"
	"io"
	"strings"

	"github.com/mitchellh/go-wordwrap"
)

// Code for rendering help.

const (
	lineWidth = 80 // descriptions wrap at this column
	maxColumn = 10 // descriptions never start further right than this
)

// PrintHelp prints help for target's options to p.Out and calls p.AfterHelp.
func (p *Parser) PrintHelp(target any) error {
	s, err := NewSchema(target)
	if err != nil {
		return err
	}
	p.printHelp(s)
	return nil
}

func (p *Parser) printHelp(s *Schema) {
	s.writeUsage(p.out(), p.program(), p.Header, p.Footer)
	if p.AfterHelp != nil {
		p.AfterHelp()
	}
}

// Usage returns the help text for s as PrintHelp would print it.
func (s *Schema) Usage(program, header, footer string) string {
	var b strings.Builder
	s.writeUsage(&b, program, header, footer)
	return b.String()
}

func (s *Schema) writeUsage(w io.Writer, program, header, footer string) {
	fmt.Fprintln(w, header)
	fmt.Fprintf(w, "\nUsage: %s [options]\n", program)
	fmt.Fprint(w, "\nOptions:\n\n")

	names := make([]string, len(s.opts))
	width := 0
	for i := range s.opts {
		names[i] = optionName(&s.opts[i])
		if len(names[i]) > width {
			width = len(names[i])
		}
	}
	column := width + 3
	if column > maxColumn {
		column = maxColumn
	}
	indent := strings.Repeat(" ", column)

	for i := range s.opts {
		o := &s.opts[i]
		var b strings.Builder
		b.WriteString(names[i])
		pos := len(names[i])
		if pos+3 > column {
			// Too long to share a line with the description.
			b.WriteByte('\n')
			pos = 0
		}
		b.WriteString(strings.Repeat(" ", column-pos))
		b.WriteString(wrapDescription(o.Description, column))
		if o.Default != nil {
			fmt.Fprintf(&b, "\n%sDEFAULT: %v", indent, o.Default)
		}
		for _, line := range strings.Split(b.String(), "\n") {
			fmt.Fprintln(w, strings.TrimRight(line, " "))
		}
	}
	fmt.Fprintln(w, footer)
}

// optionName renders the names of o with value placeholders, as in
// " -p <value> or --prefix=<value>".
func optionName(o *Option) string {
	var b strings.Builder
	if o.Short != "" {
		fmt.Fprintf(&b, " -%s%s", o.Short, placeholder(o, " "))
	}
	if o.Long != "" {
		if o.Short != "" {
			b.WriteString(" or")
		}
		fmt.Fprintf(&b, " --%s%s", o.Long, placeholder(o, "="))
	}
	return b.String()
}

func placeholder(o *Option, sep string) string {
	switch {
	case o.Kind == Bool:
		return ""
	case o.ValueOptional:
		return "[" + sep + "<value>]"
	default:
		return sep + "<value>"
	}
}

// wrapDescription wraps desc so that, starting at column, no line passes
// lineWidth unless a single word is longer. Continuation lines are indented
// to column.
func wrapDescription(desc string, column int) string {
	desc = strings.Join(strings.Fields(desc), " ")
	wrapped := wordwrap.WrapString(desc, uint(lineWidth-column))
	return strings.ReplaceAll(wrapped, "\n", "\n"+strings.Repeat(" ", column))
}
