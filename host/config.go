// Copyright 2021 Jonathan Amsterdam.

package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// ConfigDirName is the directory searched for configuration files.
const ConfigDirName = "Config"

// CommonConfigName is the base name of the file shared by all services.
const CommonConfigName = "Common"

// decoders are tried in order for each base name.
var decoders = []struct {
	ext    string
	decode func(path string, data []byte) (map[string]any, error)
}{
	{".json", decodeJSON},
	{".toml", decodeTOML},
	{".yaml", decodeYAML},
	{".yml", decodeYAML},
	{".hcl", decodeHCL},
}

// FindConfigDir looks for a directory named Config in start and then in
// each of its parents, returning the first one found.
func FindConfigDir(start string) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}
	for {
		cand := filepath.Join(dir, ConfigDirName)
		if fi, err := os.Stat(cand); err == nil && fi.IsDir() {
			return cand, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// LoadParams finds the Config directory from startDir and loads
// Common.<ext> followed by <name>.<ext>, where ext is one of json, toml,
// yaml, yml or hcl. Later files override earlier ones. It returns the
// files that were read. Finding no files is not an error.
func LoadParams(startDir, name string) (*Params, []string, error) {
	p := &Params{values: map[string]any{}}
	dir, ok := FindConfigDir(startDir)
	if !ok {
		return p, nil, nil
	}
	var files []string
	for _, base := range []string{CommonConfigName, name} {
		for _, d := range decoders {
			path := filepath.Join(dir, base+d.ext)
			data, err := os.ReadFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, nil, err
			}
			m, err := d.decode(path, data)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", path, err)
			}
			flatten("", m, p.values)
			files = append(files, path)
		}
	}
	return p, files, nil
}

// flatten stores nested tables under "Section:Key" names, lower-cased.
func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + ":" + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(key, sub, out)
			continue
		}
		out[strings.ToLower(key)] = v
	}
}

func decodeJSON(_ string, data []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeTOML(_ string, data []byte) (map[string]any, error) {
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeYAML(_ string, data []byte) (map[string]any, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// decodeHCL reads a file of top-level attributes. Sections are written
// as objects: Logging = { Level = "debug" }.
func decodeHCL(path string, data []byte) (map[string]any, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, diags
	}
	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	m := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		v, err := ctyToGo(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		m[name] = v
	}
	return m, nil
}

func ctyToGo(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}
	t := v.Type()
	switch {
	case t.Equals(cty.String):
		return v.AsString(), nil
	case t.Equals(cty.Bool):
		return v.True(), nil
	case t.Equals(cty.Number):
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case t.IsObjectType() || t.IsMapType():
		m := map[string]any{}
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			gv, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			m[k.AsString()] = gv
		}
		return m, nil
	case t.IsTupleType() || t.IsListType() || t.IsSetType():
		var list []any
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			gv, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			list = append(list, gv)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", t.FriendlyName())
	}
}

// Params holds configuration values from the files found by LoadParams.
// Keys are case-insensitive; nested sections are addressed as "Section:Key".
// The getters return the given default, with a warning, when a key is
// missing or has the wrong type.
type Params struct {
	values map[string]any
	logger *slog.Logger
}

// NewParams returns Params holding values, which are flattened as by LoadParams.
func NewParams(values map[string]any) *Params {
	p := &Params{values: map[string]any{}}
	flatten("", values, p.values)
	return p
}

// Keys returns the known keys, sorted.
func (p *Params) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the raw value for key.
func (p *Params) Lookup(key string) (any, bool) {
	v, ok := p.values[strings.ToLower(key)]
	return v, ok
}

func (p *Params) get(key string, def any) (any, bool) {
	v, ok := p.Lookup(key)
	if !ok || v == nil {
		if p.logger != nil {
			p.logger.Warn(fmt.Sprintf("%s configuration parameter missing. Will be used default: %v", key, def))
		}
		return nil, false
	}
	return v, true
}

func (p *Params) mismatch(key string, v, def any) {
	if p.logger != nil {
		p.logger.Warn(fmt.Sprintf("%s configuration parameter has value %v of the wrong type. Will be used default: %v", key, v, def))
	}
}

// String returns the value of key as a string. Non-string scalars are formatted.
func (p *Params) String(key, def string) string {
	v, ok := p.get(key, def)
	if !ok {
		return def
	}
	switch x := v.(type) {
	case string:
		return x
	case []any, map[string]any:
		p.mismatch(key, v, def)
		return def
	default:
		return fmt.Sprint(x)
	}
}

// Int returns the value of key as an int.
func (p *Params) Int(key string, def int) int {
	v, ok := p.get(key, def)
	if !ok {
		return def
	}
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		if x == math.Trunc(x) {
			return int(x)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return i
		}
	}
	p.mismatch(key, v, def)
	return def
}

// Float returns the value of key as a float64.
func (p *Params) Float(key string, def float64) float64 {
	v, ok := p.get(key, def)
	if !ok {
		return def
	}
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f
		}
	}
	p.mismatch(key, v, def)
	return def
}

// Bool returns the value of key as a bool.
func (p *Params) Bool(key string, def bool) bool {
	v, ok := p.get(key, def)
	if !ok {
		return def
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
			return b
		}
	}
	p.mismatch(key, v, def)
	return def
}

// Duration returns the value of key as a time.Duration. Strings are parsed
// with time.ParseDuration; numbers are seconds.
func (p *Params) Duration(key string, def time.Duration) time.Duration {
	v, ok := p.get(key, def)
	if !ok {
		return def
	}
	switch x := v.(type) {
	case string:
		if d, err := time.ParseDuration(strings.TrimSpace(x)); err == nil {
			return d
		}
	case int:
		return time.Duration(x) * time.Second
	case int64:
		return time.Duration(x) * time.Second
	case float64:
		return time.Duration(x * float64(time.Second))
	}
	p.mismatch(key, v, def)
	return def
}
