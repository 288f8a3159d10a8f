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
	"os"

	"gopkg.in/yaml.v3"
)

// rawConfig mirrors the exporter's YAML schema exactly; yaml.v3 expands
// anchors/aliases while decoding, so by the time rawConfig is populated
// the tree is already a plain tree with no shared subgraphs.
type rawConfig struct {
	Namespace    string           `yaml:"namespace"`
	GlobalLabels []rawGlobalLabel `yaml:"global_labels"`
	Endpoints    []rawEndpoint    `yaml:"endpoints"`
}

type rawURLParts struct {
	Paths  map[string]string `yaml:"paths"`
	Params map[string]string `yaml:"params"`
}

func (p *rawURLParts) flatten() map[string]string {
	out := map[string]string{}
	if p == nil {
		return out
	}
	for k, v := range p.Paths {
		out[k] = v
	}
	for k, v := range p.Params {
		out[k] = v
	}
	return out
}

type rawEndpoint struct {
	ID       string       `yaml:"id"`
	URL      string       `yaml:"url"`
	URLParts *rawURLParts `yaml:"url_parts"`
	Metrics  []rawMetric  `yaml:"metrics"`
}

type rawGlobalLabel struct {
	URL      string       `yaml:"url"`
	URLParts *rawURLParts `yaml:"url_parts"`
	Labels   []rawLabel   `yaml:"labels"`
}

type rawMetric struct {
	Path      string        `yaml:"path"`
	Name      *string       `yaml:"name"`
	Type      string        `yaml:"type"`
	Labels    []rawLabel    `yaml:"labels"`
	Modifiers []rawModifier `yaml:"modifiers"`
	Metrics   []rawMetric   `yaml:"metrics"`
}

type rawLabel struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

type rawModifier struct {
	Name string                 `yaml:"name"`
	Args map[string]interface{} `yaml:"args"`
}

// Load reads and compiles a configuration file. Any error returned here
// is a configuration error and should cause the process to exit with
// status 2.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening configuration %q: %w", path, err)
	}
	defer f.Close()

	var raw rawConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing configuration %q: %w", path, err)
	}
	return compile(&raw)
}
