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

package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/quantilelabs/json-exporter/internal/expr"
	"github.com/quantilelabs/json-exporter/internal/modifier"
	"github.com/quantilelabs/json-exporter/internal/sample"
	"github.com/quantilelabs/json-exporter/internal/urltemplate"
)

// compileErr attaches a path-to-offending-node prefix to every
// configuration error, so a malformed tree deep in the metric hierarchy
// still reports which node caused it.
func compileErr(where string, err error) error {
	return fmt.Errorf("%s: %w", where, err)
}

func compile(raw *rawConfig) (*Config, error) {
	if raw.Namespace == "" {
		return nil, fmt.Errorf("namespace: required")
	}
	if len(raw.Endpoints) == 0 {
		return nil, fmt.Errorf("endpoints: required, got none")
	}

	cfg := &Config{Namespace: raw.Namespace}

	for i, rg := range raw.GlobalLabels {
		where := fmt.Sprintf("global_labels[%d]", i)
		gl, err := compileGlobalLabel(rg)
		if err != nil {
			return nil, compileErr(where, err)
		}
		cfg.GlobalLabels = append(cfg.GlobalLabels, gl)
	}

	for i, re := range raw.Endpoints {
		where := fmt.Sprintf("endpoints[%d]", i)
		ep, err := compileEndpoint(re)
		if err != nil {
			return nil, compileErr(where, err)
		}
		cfg.Endpoints = append(cfg.Endpoints, ep)
	}

	return cfg, nil
}

func compileEndpoint(re rawEndpoint) (*Endpoint, error) {
	if re.URL == "" {
		return nil, fmt.Errorf("url: required")
	}
	tmpl, err := urltemplate.Compile(re.URL)
	if err != nil {
		return nil, compileErr("url", err)
	}
	if len(re.Metrics) == 0 {
		return nil, fmt.Errorf("metrics: required, got none")
	}
	ep := &Endpoint{
		ID:      re.ID,
		URL:     tmpl,
		URLVars: re.URLParts.flatten(),
	}
	for i, rm := range re.Metrics {
		node, err := compileMetric(rm, sample.Gauge)
		if err != nil {
			return nil, compileErr(fmt.Sprintf("metrics[%d]", i), err)
		}
		ep.Metrics = append(ep.Metrics, node)
	}
	return ep, nil
}

func compileGlobalLabel(rg rawGlobalLabel) (*GlobalLabelSource, error) {
	if rg.URL == "" {
		return nil, fmt.Errorf("url: required")
	}
	tmpl, err := urltemplate.Compile(rg.URL)
	if err != nil {
		return nil, compileErr("url", err)
	}
	gl := &GlobalLabelSource{URL: tmpl, URLVars: rg.URLParts.flatten()}
	for i, rl := range rg.Labels {
		l, err := compileLabel(rl)
		if err != nil {
			return nil, compileErr(fmt.Sprintf("labels[%d]", i), err)
		}
		gl.Labels = append(gl.Labels, l)
	}
	return gl, nil
}

func compileMetric(rm rawMetric, inheritedType sample.Type) (*MetricNode, error) {
	path, err := expr.CompilePath(rm.Path)
	if err != nil {
		return nil, compileErr("path", err)
	}

	rawName, err := resolveName(rm, path)
	if err != nil {
		return nil, err
	}
	name, err := expr.CompileValue(rawName)
	if err != nil {
		return nil, compileErr("name", err)
	}

	nodeType := inheritedType
	if rm.Type != "" {
		switch rm.Type {
		case string(sample.Gauge), string(sample.Counter):
			nodeType = sample.Type(rm.Type)
		default:
			return nil, fmt.Errorf("type: must be %q or %q, got %q", sample.Gauge, sample.Counter, rm.Type)
		}
	}

	node := &MetricNode{Path: path, Name: name, Type: nodeType}

	for i, rl := range rm.Labels {
		l, err := compileLabel(rl)
		if err != nil {
			return nil, compileErr(fmt.Sprintf("labels[%d]", i), err)
		}
		node.Labels = append(node.Labels, l)
	}

	for i, rmod := range rm.Modifiers {
		m, err := compileModifier(rmod)
		if err != nil {
			return nil, compileErr(fmt.Sprintf("modifiers[%d]", i), err)
		}
		node.Modifiers = append(node.Modifiers, m)
	}

	for i, child := range rm.Metrics {
		c, err := compileMetric(child, nodeType)
		if err != nil {
			return nil, compileErr(fmt.Sprintf("metrics[%d]", i), err)
		}
		node.Children = append(node.Children, c)
	}

	return node, nil
}

// resolveName picks the metric name segment for a node: if the node has
// an explicit name (even ""), it is used verbatim, since an empty
// explicit name is the documented way to skip a name segment at this
// level while letting children (or deeper ancestors) still contribute
// theirs. Otherwise the name defaults from the last path segment with
// _in_bytes/_in_millis suffix canonicalization; wildcard-terminal paths
// must supply an explicit name.
func resolveName(rm rawMetric, path *expr.Path) (string, error) {
	if rm.Name != nil {
		return *rm.Name, nil
	}
	if path.IsWildcardTerminal() {
		return "", fmt.Errorf("name: required when path ends in a wildcard")
	}
	last, ok := path.LastLiteral()
	if !ok {
		return "", nil
	}
	return canonicalizeName(last), nil
}

func canonicalizeName(name string) string {
	switch {
	case strings.HasSuffix(name, "_in_bytes"):
		return strings.TrimSuffix(name, "_in_bytes") + "_bytes"
	case strings.HasSuffix(name, "_in_millis"):
		return strings.TrimSuffix(name, "_in_millis") + "_millis"
	default:
		return name
	}
}

func compileLabel(rl rawLabel) (Label, error) {
	if rl.Name == "" {
		return Label{}, fmt.Errorf("name: required")
	}
	v, err := expr.CompileValue(rl.Value)
	if err != nil {
		return Label{}, compileErr("value", err)
	}
	return Label{Name: rl.Name, Value: v}, nil
}

func compileModifier(rmod rawModifier) (modifier.Modifier, error) {
	switch rmod.Name {
	case "mul":
		factor, err := argFloat(rmod.Args, "factor")
		if err != nil {
			return nil, err
		}
		return modifier.Mul{Factor: factor}, nil
	case "eq":
		token, ok := rmod.Args["token"]
		if !ok {
			return nil, fmt.Errorf("eq: missing required arg %q", "token")
		}
		return modifier.Eq{Token: fmt.Sprintf("%v", token)}, nil
	case "":
		return nil, fmt.Errorf("modifier name is required")
	default:
		return nil, fmt.Errorf("unknown modifier %q", rmod.Name)
	}
}

func argFloat(args map[string]interface{}, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("mul: missing required arg %q", key)
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("mul: arg %q is not numeric: %w", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("mul: arg %q has unsupported type %T", key, v)
	}
}
