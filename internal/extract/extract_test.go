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

package extract

import (
	"os"
	"strings"
	"testing"

	"github.com/quantilelabs/json-exporter/internal/config"
	"github.com/quantilelabs/json-exporter/internal/jsondoc"
	"github.com/quantilelabs/json-exporter/internal/sample"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, doc string) interface{} {
	t.Helper()
	v, err := jsondoc.Decode(strings.NewReader(doc))
	require.NoError(t, err)
	return v
}

func writeConfig(t *testing.T, yamlDoc string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestExtract_HealthScalar(t *testing.T) {
	cfg := writeConfig(t, `
namespace: elasticsearch
endpoints:
  - id: health
    url: "/_cluster/health"
    metrics:
      - path: number_of_nodes
`)
	root := decode(t, `{"number_of_nodes": 3, "cluster_name": "x"}`)
	samples, warnings, err := Endpoint(cfg.Namespace, cfg.Endpoints[0].Metrics, root)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, samples, 1)
	require.Equal(t, "elasticsearch_number_of_nodes", samples[0].Name)
	require.Equal(t, 3.0, samples[0].Value)
}

func TestExtract_StatusColorEq(t *testing.T) {
	cfg := writeConfig(t, `
namespace: elasticsearch
endpoints:
  - id: health
    url: "/_cluster/health"
    metrics:
      - path: status
        name: status
        labels:
          - {name: color, value: green}
        modifiers:
          - {name: eq, args: {token: green}}
      - path: status
        name: status
        labels:
          - {name: color, value: yellow}
        modifiers:
          - {name: eq, args: {token: yellow}}
      - path: status
        name: status
        labels:
          - {name: color, value: red}
        modifiers:
          - {name: eq, args: {token: red}}
`)
	root := decode(t, `{"status":"yellow"}`)
	samples, _, err := Endpoint(cfg.Namespace, cfg.Endpoints[0].Metrics, root)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.Equal(t, "elasticsearch_status", samples[0].Name)
	require.Equal(t, []sample.Label{{Name: "color", Value: "yellow"}}, samples[0].Labels)
	require.Equal(t, 1.0, samples[0].Value)
}

func TestExtract_WildcardCapture(t *testing.T) {
	cfg := writeConfig(t, `
namespace: elasticsearch
endpoints:
  - id: pools
    url: "/_nodes/stats"
    metrics:
      - path: thread_pool.*
        name: thread_pool
        labels:
          - {name: type, value: $1}
        metrics:
          - path: "*"
            name: "${0}_count"
`)
	root := decode(t, `{"thread_pool":{"search":{"threads":5,"queue":0}}}`)
	samples, _, err := Endpoint(cfg.Namespace, cfg.Endpoints[0].Metrics, root)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	byName := map[string]sample.Sample{}
	for _, s := range samples {
		byName[s.Name] = s
	}
	threads := byName["elasticsearch_thread_pool_threads_count"]
	require.Equal(t, 5.0, threads.Value)
	require.Equal(t, []sample.Label{{Name: "type", Value: "search"}}, threads.Labels)

	queue := byName["elasticsearch_thread_pool_queue_count"]
	require.Equal(t, 0.0, queue.Value)
}

func TestExtract_MulModifierWithCounterType(t *testing.T) {
	cfg := writeConfig(t, `
namespace: elasticsearch
endpoints:
  - id: stats
    url: "/_all/_stats"
    metrics:
      - path: query_time_in_millis
        name: query_time_seconds
        type: counter
        modifiers:
          - {name: mul, args: {factor: 0.001}}
`)
	root := decode(t, `{"query_time_in_millis": 2500}`)
	samples, _, err := Endpoint(cfg.Namespace, cfg.Endpoints[0].Metrics, root)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.Equal(t, "elasticsearch_query_time_seconds", samples[0].Name)
	require.Equal(t, sample.Counter, samples[0].Type)
	require.InDelta(t, 2.5, samples[0].Value, 1e-9)
}

func TestExtract_MissingJSONPathDropsSample(t *testing.T) {
	cfg := writeConfig(t, `
namespace: elasticsearch
endpoints:
  - id: health
    url: "/_cluster/health"
    metrics:
      - path: number_of_nodes
        name: number_of_nodes
        labels:
          - {name: host, value: "${$.host}"}
`)
	root := decode(t, `{"number_of_nodes": 3}`)
	samples, warnings, err := Endpoint(cfg.Namespace, cfg.Endpoints[0].Metrics, root)
	require.NoError(t, err)
	require.Empty(t, samples)
	require.NotEmpty(t, warnings)
}

func TestExtract_Determinism(t *testing.T) {
	cfg := writeConfig(t, `
namespace: elasticsearch
endpoints:
  - id: pools
    url: "/_nodes/stats"
    metrics:
      - path: thread_pool.*
        name: thread_pool
        labels:
          - {name: type, value: $1}
        metrics:
          - path: "*"
            name: "${0}_count"
`)
	root := decode(t, `{"thread_pool":{"search":{"threads":5,"queue":0},"bulk":{"threads":1,"queue":2}}}`)
	first, _, err := Endpoint(cfg.Namespace, cfg.Endpoints[0].Metrics, root)
	require.NoError(t, err)
	second, _, err := Endpoint(cfg.Namespace, cfg.Endpoints[0].Metrics, root)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
