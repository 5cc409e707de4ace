// Copyright 2021 Jonathan Amsterdam.

package cmdopts

import "fmt"

// SchemaError reports a mistake in the declaration of a target type:
// an unsupported field type, a bad tag or default, or a duplicate name.
// It is a programming error, not a user-input error.
type SchemaError struct {
	Type  string // target type, if known
	Field string // offending field, if any
	Err   error
}

func (e *SchemaError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("cmdopts: %s, field %q: %v", e.Type, e.Field, e.Err)
	case e.Type != "":
		return fmt.Sprintf("cmdopts: %s: %v", e.Type, e.Err)
	default:
		return fmt.Sprintf("cmdopts: %v", e.Err)
	}
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// DiagnosticKind classifies a Diagnostic.
type DiagnosticKind int

const (
	// UnknownOption: the name matched no option. The token is dropped.
	UnknownOption DiagnosticKind = iota + 1
	// MissingValue: a non-boolean option had no value to consume.
	MissingValue
	// TypeCoercion: the value could not be converted to the option's kind.
	TypeCoercion
	// RequiredOption: a required option was never provided.
	RequiredOption
)

func (k DiagnosticKind) String() string {
	switch k {
	case UnknownOption:
		return "unknown option"
	case MissingValue:
		return "missing value"
	case TypeCoercion:
		return "type coercion"
	case RequiredOption:
		return "required option"
	default:
		return fmt.Sprintf("DiagnosticKind(%d)", int(k))
	}
}

// A Diagnostic is a problem found while parsing. None of them stop the parse.
type Diagnostic struct {
	Kind DiagnosticKind
	// Option is the option as written on the command line, such as "--count",
	// or for RequiredOption, its names, such as "-p/--prefix".
	Option string
	// Value is the offending text, for TypeCoercion.
	Value string
	// Want is the kind the value should have had, for TypeCoercion.
	Want Kind
}

func (d *Diagnostic) Error() string {
	switch d.Kind {
	case UnknownOption:
		return fmt.Sprintf("unknown option %s", d.Option)
	case MissingValue:
		return fmt.Sprintf("no value provided for option %s", d.Option)
	case TypeCoercion:
		return fmt.Sprintf("cannot set option %s to %q: want %s", d.Option, d.Value, d.Want)
	case RequiredOption:
		return fmt.Sprintf("option %s is required", d.Option)
	default:
		return fmt.Sprintf("%s: %s", d.Kind, d.Option)
	}
}

// label is the prefix used when the diagnostic is printed.
func (d *Diagnostic) label() string {
	if d.Kind == RequiredOption {
		return "ERROR!"
	}
	return "WARNING!"
}
