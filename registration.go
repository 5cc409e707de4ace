// Copyright 2021 Jonathan Amsterdam.

package cmdopts

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
)

// Code to build option schemas from struct types.

// A Definer supplies its options explicitly instead of through struct tags.
// OptionSchema is called on the zero value of the target type, once per type.
// Each returned Option must name the struct field it binds in Option.Field;
// fields that are not named are not options.
type Definer interface {
	OptionSchema() []Option
}

// Option describes one accepted command-line option.
type Option struct {
	// Field is the name of the struct field the option populates.
	Field string
	// Short and Long are the option names without leading dashes.
	// At least one is set after schema construction; if neither is given,
	// Long is the lower-cased field name.
	Short, Long string
	// Kind is derived from the field's type. When set explicitly by a
	// Definer it must agree with the field.
	Kind Kind
	// Required options must appear on the command line unless help is requested.
	Required bool
	// ValueOptional allows a non-boolean option to appear without a value.
	// Such an option never consumes the following argument; its value
	// must be given inline, as in --level=3.
	ValueOptional bool
	// Default is assigned to the field after parsing if the option was not provided.
	Default any
	// Description is shown in help output.
	Description string

	index []int // field index in the target struct; nil for the help option
}

func (o *Option) isHelp() bool { return o.index == nil }

// displayName is used in diagnostics.
func (o *Option) displayName() string {
	switch {
	case o.Short != "" && o.Long != "":
		return "-" + o.Short + "/--" + o.Long
	case o.Short != "":
		return "-" + o.Short
	default:
		return "--" + o.Long
	}
}

func helpOption() Option {
	return Option{
		Short:         "h",
		Long:          "help",
		Kind:          Bool,
		ValueOptional: true,
		Description:   "Show help",
	}
}

// A Schema is the ordered set of options accepted for a struct type.
// The synthetic help option is always first, followed by the options
// in field declaration order. A Schema is immutable and may be shared.
type Schema struct {
	typ  reflect.Type
	opts []Option
}

// Options returns a copy of the schema's options, help first.
func (s *Schema) Options() []Option {
	return append([]Option(nil), s.opts...)
}

// Lookup returns the option with the given short or long name.
func (s *Schema) Lookup(name string) (Option, bool) {
	if i := s.index(name); i >= 0 {
		return s.opts[i], true
	}
	return Option{}, false
}

func (s *Schema) index(name string) int {
	if name == "" {
		return -1
	}
	for i := range s.opts {
		if s.opts[i].Short == name || s.opts[i].Long == name {
			return i
		}
	}
	return -1
}

var schemaCache sync.Map // reflect.Type -> *Schema

// NewSchema returns the schema for target, which must be a struct or a
// pointer to a struct. Schemas are built once per type.
func NewSchema(target any) (*Schema, error) {
	t := reflect.TypeOf(target)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, &SchemaError{Err: fmt.Errorf("%T is not a struct or a pointer to a struct", target)}
	}
	return schemaFor(t)
}

func schemaFor(t reflect.Type) (*Schema, error) {
	if s, ok := schemaCache.Load(t); ok {
		return s.(*Schema), nil
	}
	s := &Schema{typ: t, opts: []Option{helpOption()}}
	var err error
	if def, ok := reflect.New(t).Interface().(Definer); ok {
		err = s.processDefinitions(def.OptionSchema())
	} else {
		err = s.processFields()
	}
	if err != nil {
		return nil, err
	}
	if err := s.checkNames(); err != nil {
		return nil, err
	}
	actual, _ := schemaCache.LoadOrStore(t, s)
	return actual.(*Schema), nil
}

func (s *Schema) errorf(field string, format string, args ...any) error {
	return &SchemaError{Type: s.typ.String(), Field: field, Err: fmt.Errorf(format, args...)}
}

func (s *Schema) processFields() error {
	for i := 0; i < s.typ.NumField(); i++ {
		sf := s.typ.Field(i)
		tag, ok := sf.Tag.Lookup("opt")
		if !ok && !strings.Contains(string(sf.Tag), `:"`) {
			// If the "opt" key is missing and the tag isn't in the conventional
			// format, assume the entire tag is an option spec.
			tag = string(sf.Tag)
		}
		if tag == "-" {
			continue
		}
		if !sf.IsExported() {
			if tag != "" {
				return s.errorf(sf.Name, "opt tag on unexported field")
			}
			continue
		}
		o, err := s.parseTag(tag, sf)
		if err != nil {
			return err
		}
		s.opts = append(s.opts, o)
	}
	return nil
}

var validKeys = map[string]bool{
	"short":    true,
	"long":     true,
	"default":  true,
	"required": true,
	"valueopt": true,
	"doc":      true,
}

// A tag describing an option is most simply just its description.
// It can also start with some keys:
// - short=p and long=prefix, the option's names.
// - default=v, the value assigned when the option is absent.
// - required, which makes the option mandatory.
// - valueopt, which lets a non-boolean option appear without a value.
// A full example:
//
//	Prefix string `opt:"short=p, long=prefix, default=<no prefix>, service name prefix"`
func (s *Schema) parseTag(tag string, sf reflect.StructField) (Option, error) {
	m := tagToMap(tag)
	for k := range m {
		if !validKeys[k] {
			return Option{}, s.errorf(sf.Name, "invalid key: %q", k)
		}
	}
	for _, k := range []string{"required", "valueopt"} {
		if v := m[k]; v != "" {
			return Option{}, s.errorf(sf.Name, "%q should not have a value", k)
		}
	}
	o := Option{
		Field:       sf.Name,
		Short:       trimDashes(m["short"]),
		Long:        trimDashes(m["long"]),
		Description: m["doc"],
	}
	_, o.Required = m["required"]
	_, o.ValueOptional = m["valueopt"]
	kind, err := kindOf(sf.Type)
	if err != nil {
		return Option{}, s.errorf(sf.Name, "%v", err)
	}
	o.Kind = kind
	if def, ok := m["default"]; ok {
		v, err := parserFor(kind)(def)
		if err != nil {
			return Option{}, s.errorf(sf.Name, "default %q: %v", def, err)
		}
		o.Default = v
	}
	o.index = sf.Index
	implicitName(&o)
	return o, nil
}

func (s *Schema) processDefinitions(defs []Option) error {
	seen := map[string]bool{}
	for _, o := range defs {
		sf, ok := s.typ.FieldByName(o.Field)
		if !ok || len(sf.Index) != 1 {
			return s.errorf(o.Field, "no such field")
		}
		if !sf.IsExported() {
			return s.errorf(o.Field, "option on unexported field")
		}
		if seen[o.Field] {
			return s.errorf(o.Field, "field defined twice")
		}
		seen[o.Field] = true
		kind, err := kindOf(sf.Type)
		if err != nil {
			return s.errorf(o.Field, "%v", err)
		}
		if o.Kind != 0 && o.Kind != kind {
			return s.errorf(o.Field, "declared kind %s, but field has kind %s", o.Kind, kind)
		}
		o.Kind = kind
		o.Short = trimDashes(o.Short)
		o.Long = trimDashes(o.Long)
		if o.Default != nil {
			v, err := normalizeDefault(kind, o.Default)
			if err != nil {
				return s.errorf(o.Field, "default: %v", err)
			}
			o.Default = v
		}
		o.index = sf.Index
		implicitName(&o)
		s.opts = append(s.opts, o)
	}
	return nil
}

// implicitName guarantees that every option is addressable.
func implicitName(o *Option) {
	if o.Short == "" && o.Long == "" {
		o.Long = strings.ToLower(o.Field)
	}
}

func trimDashes(name string) string {
	return strings.TrimLeft(name, "-/")
}

// checkNames rejects names that resolve to more than one option,
// including user options that collide with -h or --help.
func (s *Schema) checkNames() error {
	owner := map[string]string{}
	for _, o := range s.opts {
		field := o.Field
		if o.isHelp() {
			field = "help"
		}
		for _, name := range []string{o.Short, o.Long} {
			if name == "" {
				continue
			}
			if prev, dup := owner[name]; dup {
				return s.errorf(o.Field, "option name %q already used by %s", name, prev)
			}
			owner[name] = field
		}
	}
	return nil
}

var keyRegexp = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*=`)

// bareKeys are keys that may appear without a value.
var bareKeys = map[string]bool{
	"required": true,
	"valueopt": true,
}

func tagToMap(tag string) map[string]string {
	m := map[string]string{}
	tag = strings.TrimSpace(tag)
	for len(tag) > 0 {
		var key, value string
		if loc := keyRegexp.FindStringIndex(tag); loc != nil {
			key = tag[:loc[1]-1]
			tag = tag[loc[1]:]
		} else if word, _, _ := strings.Cut(tag, ","); bareKeys[strings.TrimSpace(word)] {
			key = strings.TrimSpace(word)
			tag = tag[len(word):]
		} else {
			m["doc"] = tag
			break
		}
		before, after, found := strings.Cut(tag, ",")
		if !found {
			value = tag
			tag = ""
		} else {
			value = before
			tag = strings.TrimSpace(after)
		}
		m[key] = strings.TrimSpace(value)
	}
	return m
}
