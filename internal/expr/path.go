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

// Package expr implements the two small languages shared by the
// configuration: path expressions (the `path:` field of a metric node)
// and value expressions (label values and name substitutions).
//
// Both are compiled once at configuration-load time and evaluated many
// times per scrape, so compilation always produces an immutable value
// that Resolve/Eval never mutate.
package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/quantilelabs/json-exporter/internal/jsondoc"
)

// segKind distinguishes a literal path segment from a wildcard one.
type segKind int

const (
	segLiteral segKind = iota
	segWildcard
)

type pathSegment struct {
	kind  segKind
	key   string // object key this segment matches, for segLiteral
	index int    // array index, when the segment carries [N]; -1 if absent
}

// Path is a compiled path expression, e.g. "thread_pool.*" or
// "shards.*.*" or the empty path (stay on the current node).
type Path struct {
	raw      string
	segments []pathSegment
}

// Match is one result of resolving a Path against a JSON node: the node
// selected, and the new positional captures contributed by any wildcard
// segments encountered along the way, outermost first.
type Match struct {
	Node     interface{}
	Captures []string
}

// CompilePath parses a path expression. An empty string compiles to the
// identity path (Resolve always yields a single Match with no new
// captures, Node equal to the input node).
func CompilePath(raw string) (*Path, error) {
	p := &Path{raw: raw}
	if raw == "" {
		return p, nil
	}
	for _, part := range strings.Split(raw, ".") {
		seg, err := compileSegment(part)
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", raw, err)
		}
		p.segments = append(p.segments, seg)
	}
	return p, nil
}

// IsWildcardTerminal reports whether the path's last segment is a
// wildcard, in which case there is no literal key left to derive a
// default metric name from, so the configuration must supply one
// explicitly.
func (p *Path) IsWildcardTerminal() bool {
	if len(p.segments) == 0 {
		return false
	}
	return p.segments[len(p.segments)-1].kind == segWildcard
}

// LastLiteral returns the last literal key in the path, used to derive a
// default metric name. ok is false if the path is empty or wildcard
// terminal.
func (p *Path) LastLiteral() (name string, ok bool) {
	if len(p.segments) == 0 || p.IsWildcardTerminal() {
		return "", false
	}
	return p.segments[len(p.segments)-1].key, true
}

func compileSegment(part string) (pathSegment, error) {
	key := part
	index := -1
	if i := strings.IndexByte(part, '['); i >= 0 {
		if !strings.HasSuffix(part, "]") {
			return pathSegment{}, fmt.Errorf("malformed index segment %q", part)
		}
		key = part[:i]
		idxStr := part[i+1 : len(part)-1]
		n, err := strconv.Atoi(idxStr)
		if err != nil {
			return pathSegment{}, fmt.Errorf("malformed index in %q: %w", part, err)
		}
		index = n
	}
	if key == "*" {
		if index != -1 {
			return pathSegment{}, fmt.Errorf("wildcard segment %q cannot carry an index", part)
		}
		return pathSegment{kind: segWildcard}, nil
	}
	if key == "" {
		return pathSegment{}, fmt.Errorf("empty path segment in %q", part)
	}
	return pathSegment{kind: segLiteral, key: key, index: index}, nil
}

// Resolve walks node against the compiled path, producing zero or more
// matches. Traversal of an absent intermediate key silently yields no
// matches; a metric simply has nothing to report for that scrape, which
// is not an error.
func (p *Path) Resolve(node interface{}) ([]Match, error) {
	matches := []Match{{Node: node}}
	for _, seg := range p.segments {
		var next []Match
		for _, m := range matches {
			children, err := resolveSegment(seg, m.Node)
			if err != nil {
				return nil, err
			}
			for _, c := range children {
				caps := m.Captures
				if seg.kind == segWildcard {
					caps = append(append([]string{}, m.Captures...), c.capture)
				}
				next = append(next, Match{Node: c.node, Captures: caps})
			}
		}
		matches = next
		if len(matches) == 0 {
			return nil, nil
		}
	}
	return matches, nil
}

type segResult struct {
	node    interface{}
	capture string // bound key/index for wildcard segments, else empty
}

func resolveSegment(seg pathSegment, node interface{}) ([]segResult, error) {
	switch seg.kind {
	case segWildcard:
		switch v := node.(type) {
		case *jsondoc.Object:
			out := make([]segResult, 0, v.Len())
			for _, k := range v.Keys() {
				child, _ := v.Get(k)
				out = append(out, segResult{node: child, capture: k})
			}
			return out, nil
		case []interface{}:
			out := make([]segResult, 0, len(v))
			for i, elem := range v {
				out = append(out, segResult{node: elem, capture: strconv.Itoa(i)})
			}
			return out, nil
		default:
			return nil, nil
		}
	case segLiteral:
		obj, ok := node.(*jsondoc.Object)
		if !ok {
			return nil, nil
		}
		child, ok := obj.Get(seg.key)
		if !ok {
			return nil, nil
		}
		if seg.index >= 0 {
			arr, ok := child.([]interface{})
			if !ok || seg.index >= len(arr) {
				return nil, nil
			}
			child = arr[seg.index]
		}
		return []segResult{{node: child}}, nil
	default:
		return nil, fmt.Errorf("unknown segment kind")
	}
}
