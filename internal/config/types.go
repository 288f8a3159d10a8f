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

// Package config holds the immutable, in-memory representation of a
// loaded exporter configuration. Load parses YAML, validates it,
// compiles every path/value expression and modifier, and resolves name
// and type inheritance, producing a Config that is safe to share
// read-only across every scrape for the lifetime of the process.
package config

import (
	"github.com/quantilelabs/json-exporter/internal/expr"
	"github.com/quantilelabs/json-exporter/internal/modifier"
	"github.com/quantilelabs/json-exporter/internal/sample"
	"github.com/quantilelabs/json-exporter/internal/urltemplate"
)

// Config is the top-level compiled configuration.
type Config struct {
	Namespace    string
	GlobalLabels []*GlobalLabelSource
	Endpoints    []*Endpoint
}

// Endpoint describes one URL to scrape and the metric tree to extract
// from its JSON response.
type Endpoint struct {
	ID      string
	URL     *urltemplate.Template
	URLVars map[string]string
	Metrics []*MetricNode
}

// EffectiveURL renders the endpoint's URL template against its own
// url_parts substitution table.
func (e *Endpoint) EffectiveURL() (string, error) {
	return e.URL.Render(e.URLVars)
}

// MetricNode is one node of the declarative extraction tree. A node with
// no Children is a leaf and emits samples; all others are pure
// structure.
type MetricNode struct {
	Path *expr.Path
	// Name is the compiled name segment. It is a full value expression,
	// not a plain string, so that a name can itself reference positional
	// captures, e.g. "${0}_count".
	Name      *expr.Value
	Type      sample.Type
	Labels    []Label
	Modifiers []modifier.Modifier
	Children  []*MetricNode
}

// IsLeaf reports whether the node has no children.
func (n *MetricNode) IsLeaf() bool { return len(n.Children) == 0 }

// Label pairs a label name with its compiled value expression.
type Label struct {
	Name  string
	Value *expr.Value
}

// GlobalLabelSource is a mini-endpoint whose JSON response yields label
// values injected into every sample of the scrape.
type GlobalLabelSource struct {
	URL     *urltemplate.Template
	URLVars map[string]string
	Labels  []Label
}

// EffectiveURL renders the source's URL template.
func (g *GlobalLabelSource) EffectiveURL() (string, error) {
	return g.URL.Render(g.URLVars)
}
