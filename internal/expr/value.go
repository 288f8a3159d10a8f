// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package expr

import (
	"strconv"
	"strings"

	"github.com/quantilelabs/json-exporter/internal/jsondoc"
)

type partKind int

const (
	partLiteral partKind = iota
	partCapture
	partJSONPath
)

type valuePart struct {
	kind    partKind
	lit     string
	capture int      // N of $N, for partCapture; 0 means $0 (joins the node's own captures)
	fields  []string // field chain after '$', for partJSONPath; empty means "$" alone
}

// Value is a compiled value expression: a literal, a positional capture,
// a restricted JSONPath expression, or any concatenation of those.
type Value struct {
	raw   string
	parts []valuePart
}

// CompileValue parses a label value or name-substitution expression.
func CompileValue(raw string) (*Value, error) {
	v := &Value{raw: raw}
	i := 0
	for i < len(raw) {
		if raw[i] != '$' {
			j := strings.IndexByte(raw[i:], '$')
			if j < 0 {
				v.parts = append(v.parts, valuePart{kind: partLiteral, lit: raw[i:]})
				break
			}
			v.parts = append(v.parts, valuePart{kind: partLiteral, lit: raw[i : i+j]})
			i += j
			continue
		}
		// raw[i] == '$'
		switch {
		case i+1 < len(raw) && raw[i+1] == '{':
			end := strings.IndexByte(raw[i+2:], '}')
			if end < 0 {
				return nil, errMalformed(raw, "unterminated ${...}")
			}
			inner := raw[i+2 : i+2+end]
			part, err := compileBraced(raw, inner)
			if err != nil {
				return nil, err
			}
			v.parts = append(v.parts, part)
			i = i + 2 + end + 1
		case i+1 < len(raw) && isDigit(raw[i+1]):
			j := i + 1
			for j < len(raw) && isDigit(raw[j]) {
				j++
			}
			n, err := strconv.Atoi(raw[i+1 : j])
			if err != nil {
				return nil, errMalformed(raw, "bad capture index")
			}
			v.parts = append(v.parts, valuePart{kind: partCapture, capture: n})
			i = j
		default:
			// Lone '$' with no recognizable form: treat as a literal
			// character so authors can write prices or shell-ish text
			// without escaping.
			v.parts = append(v.parts, valuePart{kind: partLiteral, lit: "$"})
			i++
		}
	}
	return v, nil
}

func compileBraced(raw, inner string) (valuePart, error) {
	if inner == "" {
		return valuePart{}, errMalformed(raw, "empty ${}")
	}
	if isAllDigits(inner) {
		n, _ := strconv.Atoi(inner)
		return valuePart{kind: partCapture, capture: n}, nil
	}
	if inner[0] == '$' {
		rest := inner[1:]
		var fields []string
		if rest != "" {
			if rest[0] != '.' {
				return valuePart{}, errMalformed(raw, "JSONPath must be '$' or '$.field...'")
			}
			for _, f := range strings.Split(rest[1:], ".") {
				if f == "" || strings.ContainsAny(f, "[]()?*@") {
					return valuePart{}, errMalformed(raw, "unsupported JSONPath construct: "+f)
				}
				fields = append(fields, f)
			}
		}
		return valuePart{kind: partJSONPath, fields: fields}, nil
	}
	return valuePart{}, errMalformed(raw, "unrecognized ${"+inner+"}")
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func errMalformed(raw, why string) error {
	return &malformedValueError{raw: raw, why: why}
}

type malformedValueError struct {
	raw, why string
}

func (e *malformedValueError) Error() string {
	return "value expression " + strconv.Quote(e.raw) + ": " + e.why
}

// Captures bundles the two capture views an enclosing path builds up
// while walking the JSON tree. All is every positional capture
// accumulated from the outermost ancestor down to (and including) the
// current node, indexed by $1..$N across the whole chain. Own is only
// the captures the *current* node's own path segment contributed (there
// can be more than one, e.g. "shards.*.*"); $0 joins only these, which
// is what lets a node name itself from its own wildcard match without
// dragging ancestor captures along.
type Captures struct {
	All []string
	Own []string
}

// Eval evaluates the expression against the given captures and the
// current JSON node (the node selected by the enclosing path, used to
// resolve JSONPath parts). ok is false if any constituent part could not
// be resolved, in which case the caller must drop the sample: a label
// or name that can't be computed means there is nothing coherent to
// report for that node on this scrape.
func (v *Value) Eval(node interface{}, captures Captures) (result string, ok bool) {
	var sb strings.Builder
	for _, p := range v.parts {
		switch p.kind {
		case partLiteral:
			sb.WriteString(p.lit)
		case partCapture:
			if p.capture == 0 {
				sb.WriteString(strings.Join(captures.Own, "_"))
				continue
			}
			if p.capture < 1 || p.capture > len(captures.All) {
				return "", false
			}
			sb.WriteString(captures.All[p.capture-1])
		case partJSONPath:
			s, found := evalJSONPath(node, p.fields)
			if !found {
				return "", false
			}
			sb.WriteString(s)
		}
	}
	return sb.String(), true
}

func evalJSONPath(node interface{}, fields []string) (string, bool) {
	cur := node
	for _, f := range fields {
		obj, ok := cur.(*jsondoc.Object)
		if !ok {
			return "", false
		}
		child, ok := obj.Get(f)
		if !ok {
			return "", false
		}
		cur = child
	}
	return stringify(cur)
}

// stringify coerces a leaf JSON value to a label string. Objects and
// arrays have no sensible string form, so they fail the expression.
func stringify(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case nil:
		return "", false
	default:
		return "", false
	}
}
