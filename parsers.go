// Copyright 2021 Jonathan Amsterdam.

package cmdopts

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Parsers for option values.

// Kind is the value type of an option.
type Kind int

const (
	String Kind = iota + 1
	Int
	Double
	Bool
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Int:
		return "int"
	case Double:
		return "double"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// kindOf maps a field type to its Kind. Named types are accepted if their
// underlying type is supported.
func kindOf(t reflect.Type) (Kind, error) {
	switch t.Kind() {
	case reflect.String:
		return String, nil
	case reflect.Int, reflect.Int32:
		return Int, nil
	case reflect.Float64:
		return Double, nil
	case reflect.Bool:
		return Bool, nil
	default:
		return 0, fmt.Errorf("unsupported type %s", t)
	}
}

// parseFunc is the type of functions that parse option strings into values.
// The values are always string, int64, float64 or bool.
type parseFunc func(string) (any, error)

// parserFor returns the parser for values of kind k.
func parserFor(k Kind) parseFunc {
	switch k {
	case String:
		return func(s string) (any, error) {
			return unquote(s), nil
		}
	case Int:
		return func(s string) (any, error) {
			return strconv.ParseInt(strings.TrimSpace(s), 10, 32)
		}
	case Double:
		return func(s string) (any, error) {
			return strconv.ParseFloat(strings.TrimSpace(s), 64)
		}
	case Bool:
		return func(s string) (any, error) {
			return strconv.ParseBool(strings.TrimSpace(s))
		}
	default:
		panic(fmt.Sprintf("cmdopts: no parser for %s", k))
	}
}

// unquote removes one layer of surrounding double quotes.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// normalizeDefault converts a default supplied by a Definer into the
// representation produced by parserFor(k).
func normalizeDefault(k Kind, v any) (any, error) {
	switch k {
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Int:
		var i int64
		switch x := v.(type) {
		case int:
			i = int64(x)
		case int32:
			i = int64(x)
		case int64:
			i = x
		default:
			return nil, fmt.Errorf("%T is not an integer", v)
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, fmt.Errorf("%d out of 32-bit range", i)
		}
		return i, nil
	case Double:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int:
			return float64(x), nil
		}
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%T cannot be used for a %s option", v, k)
}

// setValue stores a parsed value into field.
func setValue(field reflect.Value, v any) {
	switch x := v.(type) {
	case string:
		field.SetString(x)
	case int64:
		field.SetInt(x)
	case float64:
		field.SetFloat(x)
	case bool:
		field.SetBool(x)
	default:
		panic(fmt.Sprintf("cmdopts: cannot set %T", v))
	}
}
