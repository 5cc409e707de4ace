// Copyright 2021 Jonathan Amsterdam.

package cmdopts

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Code for parsing command lines.

// A Parser holds the settings for parsing and for help output.
// The zero value is ready to use. A Parser keeps no state between calls.
type Parser struct {
	// Program is the name shown in the usage line. If empty, the base name of
	// the executable without its extension is used.
	Program string
	// Header is printed before the usage line, Footer after the options.
	Header, Footer string
	// HelpOnEmpty prints help when Parse is called with no arguments.
	HelpOnEmpty bool
	// Out receives help text and diagnostics. If nil, os.Stdout is used.
	Out io.Writer
	// AfterHelp, if non-nil, is called each time help has been printed.
	AfterHelp func()
}

func (p *Parser) out() io.Writer {
	if p.Out == nil {
		return os.Stdout
	}
	return p.Out
}

func (p *Parser) program() string {
	if p.Program != "" {
		return p.Program
	}
	base := filepath.Base(os.Args[0])
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Status summarizes the outcome of a parse.
type Status int

const (
	// OK means every required option was provided and help was not requested.
	OK Status = iota
	// HelpRequested means -h or --help appeared. Required options are not enforced.
	HelpRequested
	// RequiredMissing means at least one required option was never provided.
	// The caller decides whether to prompt, exit or carry on.
	RequiredMissing
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case HelpRequested:
		return "help requested"
	case RequiredMissing:
		return "required option missing"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the outcome of a successful call to Parse.
type Result struct {
	Status Status
	// HelpShown reports whether help was printed during the parse.
	HelpShown bool
	// Missing lists the required options that were not provided, in schema order.
	Missing []string
	// Diagnostics are all problems found, in the order they were found.
	Diagnostics []*Diagnostic

	provided map[string]bool
}

// Provided reports whether the option with the given short or long name
// appeared on the command line, even with a missing or bad value.
// Defaults do not count.
func (r *Result) Provided(name string) bool {
	return r.provided[trimDashes(name)]
}

// Err returns all diagnostics as a *multierror.Error, or nil if there were none.
func (r *Result) Err() error {
	var err *multierror.Error
	for _, d := range r.Diagnostics {
		err = multierror.Append(err, d)
	}
	return err.ErrorOrNil()
}

// Parse populates target, which must be a pointer to a struct, from args.
// Args should not include the program name.
//
// Problems with the arguments are reported in the Result and printed to
// p.Out; they never stop the parse. The returned error is non-nil only
// when target's type cannot be used, in which case it is a *SchemaError
// and target is untouched.
func (p *Parser) Parse(args []string, target any) (*Result, error) {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, &SchemaError{Err: fmt.Errorf("%T is not a pointer to a struct", target)}
	}
	s, err := schemaFor(v.Elem().Type())
	if err != nil {
		return nil, err
	}
	st := &parseState{
		p:        p,
		schema:   s,
		target:   v.Elem(),
		provided: make([]bool, len(s.opts)),
		res:      &Result{provided: map[string]bool{}},
	}
	st.scan(args)
	if len(args) == 0 && p.HelpOnEmpty {
		st.showHelp()
	}
	st.finish()
	return st.res, nil
}

// MustParse is like Parse but panics if target's type cannot be used.
func (p *Parser) MustParse(args []string, target any) *Result {
	res, err := p.Parse(args, target)
	if err != nil {
		panic(err)
	}
	return res
}

// parseState is the option table for a single call to Parse.
type parseState struct {
	p             *Parser
	schema        *Schema
	target        reflect.Value
	provided      []bool // parallel to schema.opts
	helpRequested bool
	res           *Result
}

func (st *parseState) scan(args []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		var prefix, name, value string
		var hasValue bool
		switch {
		case strings.HasPrefix(arg, "--"):
			prefix = "--"
			name, value, hasValue = strings.Cut(arg[2:], "=")
		case strings.HasPrefix(arg, "-"), strings.HasPrefix(arg, "/"):
			prefix, name = arg[:1], arg[1:]
		default:
			// Not an option; positional arguments are not supported.
			continue
		}
		flag := prefix + name
		idx := st.schema.index(name)
		if idx < 0 {
			st.report(&Diagnostic{Kind: UnknownOption, Option: flag})
			continue
		}
		o := &st.schema.opts[idx]
		if o.isHelp() {
			st.helpRequested = true
			st.showHelp()
			continue
		}
		if o.Kind != Bool && !o.ValueOptional && !hasValue &&
			i+1 < len(args) && !looksLikeOption(args[i+1]) {
			i++
			value, hasValue = args[i], true
		}
		st.apply(idx, flag, value, hasValue)
	}
}

// looksLikeOption reports whether arg would be read as an option name.
func looksLikeOption(arg string) bool {
	return strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "/")
}

func (st *parseState) apply(idx int, flag, value string, hasValue bool) {
	o := &st.schema.opts[idx]
	// Matched options count as provided even when the value is bad.
	st.provided[idx] = true
	field := st.target.FieldByIndex(o.index)
	switch {
	case o.Kind == Bool:
		// Booleans toggle; any value is ignored.
		field.SetBool(!field.Bool())
	case !hasValue && o.ValueOptional:
		// Present without a value; the field keeps its current value.
	case !hasValue:
		st.report(&Diagnostic{Kind: MissingValue, Option: flag})
		return
	default:
		v, err := parserFor(o.Kind)(value)
		if err != nil {
			st.report(&Diagnostic{Kind: TypeCoercion, Option: flag, Value: value, Want: o.Kind})
			return
		}
		setValue(field, v)
	}
}

// finish enforces required options and applies defaults.
func (st *parseState) finish() {
	res := st.res
	for i := range st.schema.opts {
		o := &st.schema.opts[i]
		switch {
		case st.provided[i]:
			for _, name := range []string{o.Short, o.Long} {
				if name != "" {
					res.provided[name] = true
				}
			}
		case o.Required && !st.helpRequested:
			name := o.displayName()
			res.Missing = append(res.Missing, name)
			st.report(&Diagnostic{Kind: RequiredOption, Option: name})
		case o.Default != nil && !o.isHelp():
			setValue(st.target.FieldByIndex(o.index), o.Default)
		}
	}
	switch {
	case st.helpRequested:
		res.Status = HelpRequested
	case len(res.Missing) > 0:
		res.Status = RequiredMissing
	default:
		res.Status = OK
	}
}

func (st *parseState) report(d *Diagnostic) {
	st.res.Diagnostics = append(st.res.Diagnostics, d)
	fmt.Fprintf(st.p.out(), "%s %v\n", d.label(), d)
}

func (st *parseState) showHelp() {
	st.p.printHelp(st.schema)
	st.res.HelpShown = true
}
