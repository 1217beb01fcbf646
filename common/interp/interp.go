// Package interp resolves "${var.path}" markers inside a Function node's
// baked parameter template against an instance's live variable scope,
// grounded on the teacher resolver's regex-scan-then-gjson-extract
// approach.
package interp

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/flowforge/engine/common/value"
)

var placeholder = regexp.MustCompile(`\$\{([^}]+)\}`)

// Resolve walks params (as produced by the compiler's parameter baking
// pass) and returns a new Value with every "${...}" marker substituted
// by the corresponding value out of vars. A bare "${x}" string is
// replaced by the referenced value directly (preserving its type); a
// "${x} is ${y}" string has each match stringified and spliced in.
func Resolve(params value.Value, vars map[string]value.Value) (value.Value, error) {
	switch params.Kind() {
	case value.KindString:
		return resolveString(params.AsString(), vars)
	case value.KindArray:
		out := make([]value.Value, len(params.AsArray()))
		for i, e := range params.AsArray() {
			r, err := Resolve(e, vars)
			if err != nil {
				return value.Null(), err
			}
			out[i] = r
		}
		return value.Array(out), nil
	case value.KindObject:
		out := make(map[string]value.Value, len(params.AsObject()))
		for k, e := range params.AsObject() {
			r, err := Resolve(e, vars)
			if err != nil {
				return value.Null(), err
			}
			out[k] = r
		}
		return value.Object(out), nil
	default:
		return params, nil
	}
}

func resolveString(s string, vars map[string]value.Value) (value.Value, error) {
	matches := placeholder.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return value.String(s), nil
	}

	// A string that is exactly one "${...}" marker and nothing else
	// resolves to the referenced value's native type, not a stringified
	// copy of it, so "${count}" can bind an int/array/object parameter.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		expr := s[matches[0][2]:matches[0][3]]
		return resolveExpr(expr, vars)
	}

	out := ""
	last := 0
	for _, m := range matches {
		out += s[last:m[0]]
		expr := s[m[2]:m[3]]
		v, err := resolveExpr(expr, vars)
		if err != nil {
			return value.Null(), err
		}
		out += stringify(v)
		last = m[1]
	}
	out += s[last:]
	return value.String(out), nil
}

// resolveExpr resolves one "${...}" body: "name" or "name.field.path".
func resolveExpr(expr string, vars map[string]value.Value) (value.Value, error) {
	name := expr
	path := ""
	for i, c := range expr {
		if c == '.' {
			name = expr[:i]
			path = expr[i+1:]
			break
		}
	}

	root, ok := vars[name]
	if !ok {
		return value.Null(), nil
	}
	if path == "" {
		return root, nil
	}

	data, err := root.MarshalJSON()
	if err != nil {
		return value.Null(), fmt.Errorf("interp: encode %q: %w", name, err)
	}
	result := gjson.GetBytes(data, path)
	if !result.Exists() {
		return value.Null(), fmt.Errorf("interp: path %q not found on variable %q", path, name)
	}
	return value.FromJSON([]byte(result.Raw))
}

func stringify(v value.Value) string {
	if v.Kind() == value.KindString {
		return v.AsString()
	}
	data, err := json.Marshal(v.ToNative())
	if err != nil {
		return ""
	}
	return string(data)
}
