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

// Package extract implements the recursive walker that descends a
// compiled metric tree against a JSON document, producing a flat,
// deterministic stream of samples.
package extract

import (
	"fmt"

	"github.com/quantilelabs/json-exporter/internal/config"
	"github.com/quantilelabs/json-exporter/internal/expr"
	"github.com/quantilelabs/json-exporter/internal/jsondoc"
	"github.com/quantilelabs/json-exporter/internal/modifier"
	"github.com/quantilelabs/json-exporter/internal/sample"
)

// evalContext carries everything a node inherits from its ancestors
// (name prefix, labels, type, modifier chain, positional captures). It
// is a small value type threaded down the recursion, copied and
// extended at each level rather than mutated in place, so sibling
// subtrees never see each other's contributions.
type evalContext struct {
	prefix    string
	labels    []sample.Label
	typ       sample.Type
	modifiers []modifier.Modifier
	captures  []string // accumulated across the whole ancestor chain; indexed by $1..$N
}

// Endpoint walks every root MetricNode of one endpoint against its JSON
// response, returning the samples it produced, a list of human-readable
// reasons for any non-fatal per-sample drops, and a non-nil error only
// for a fatal evaluation error, which aborts that endpoint's samples
// without affecting any other endpoint.
func Endpoint(namespace string, metrics []*config.MetricNode, root interface{}) ([]sample.Sample, []string, error) {
	var out []sample.Sample
	var warnings []string
	base := evalContext{typ: sample.Gauge}
	for _, node := range metrics {
		samples, warns, err := walk(namespace, node, root, base)
		if err != nil {
			return nil, warnings, err
		}
		out = append(out, samples...)
		warnings = append(warnings, warns...)
	}
	return out, warnings, nil
}

func walk(namespace string, node *config.MetricNode, current interface{}, ctx evalContext) ([]sample.Sample, []string, error) {
	matches, err := node.Path.Resolve(current)
	if err != nil {
		return nil, nil, fmt.Errorf("extract: %w", err)
	}

	var out []sample.Sample
	var warnings []string

matchLoop:
	for _, m := range matches {
		child := ctx
		child.captures = append(append([]string{}, ctx.captures...), m.Captures...)
		child.typ = node.Type
		captures := expr.Captures{All: child.captures, Own: m.Captures}

		nameSegment, ok := node.Name.Eval(m.Node, captures)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("dropped sample at %q: name could not be resolved", child.prefix))
			continue matchLoop
		}
		if nameSegment != "" {
			if child.prefix == "" {
				child.prefix = nameSegment
			} else {
				child.prefix = child.prefix + "_" + nameSegment
			}
		}
		if len(node.Modifiers) > 0 {
			child.modifiers = append(append([]modifier.Modifier{}, ctx.modifiers...), node.Modifiers...)
		}

		child.labels = ctx.labels
		for _, lbl := range node.Labels {
			v, ok := lbl.Value.Eval(m.Node, captures)
			if !ok {
				warnings = append(warnings, fmt.Sprintf("dropped sample at %q: label %q could not be resolved", child.prefix, lbl.Name))
				continue matchLoop
			}
			child.labels = sample.WithLabel(child.labels, lbl.Name, v)
		}

		if node.IsLeaf() {
			s, ok, warn := extractLeaf(namespace, m.Node, child)
			if warn != "" {
				warnings = append(warnings, warn)
			}
			if ok {
				out = append(out, s)
			}
			continue
		}

		for _, c := range node.Children {
			childSamples, childWarnings, err := walk(namespace, c, m.Node, child)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, childSamples...)
			warnings = append(warnings, childWarnings...)
		}
	}
	return out, warnings, nil
}

// extractLeaf coerces a leaf JSON node to a scalar, runs the modifier
// pipeline, and builds the final Sample. ok is false whenever no sample
// should be emitted; warn is a non-empty
// explanatory string only when the drop is worth logging (as opposed to
// an expected eq-suppression).
func extractLeaf(namespace string, node interface{}, ctx evalContext) (s sample.Sample, ok bool, warn string) {
	raw, convertible := leafValue(node)
	if !convertible {
		return sample.Sample{}, false, fmt.Sprintf("dropped sample %q: leaf is not a scalar JSON value", ctx.prefix)
	}
	scalar, valid := modifier.FromJSON(raw)
	if !valid {
		return sample.Sample{}, false, fmt.Sprintf("dropped sample %q: leaf is not a scalar JSON value", ctx.prefix)
	}
	value, keep, err := modifier.Apply(ctx.modifiers, scalar)
	if err != nil {
		return sample.Sample{}, false, fmt.Sprintf("dropped sample %q: %s", ctx.prefix, err)
	}
	if !keep {
		return sample.Sample{}, false, ""
	}
	return sample.Sample{
		Name:   namespace + "_" + ctx.prefix,
		Type:   ctx.typ,
		Labels: ctx.labels,
		Value:  value,
	}, true, ""
}

// leafValue converts a decoded JSON node into a value the modifier
// package can wrap: JSON null/object/array are never representable as a
// scalar and are dropped here.
func leafValue(node interface{}) (interface{}, bool) {
	switch node.(type) {
	case *jsondoc.Object, []interface{}, nil:
		return nil, false
	default:
		return node, true
	}
}
