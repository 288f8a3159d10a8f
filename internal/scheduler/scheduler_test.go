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

package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/quantilelabs/json-exporter/internal/config"
	"github.com/quantilelabs/json-exporter/internal/sample"
)

func writeConfig(t *testing.T, yamlDoc string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestScrape_MissingUpstreamIsNonFatal(t *testing.T) {
	health := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"number_of_nodes": 3}`))
	}))
	defer health.Close()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer down.Close()

	cfg := writeConfig(t, `
namespace: elasticsearch
endpoints:
  - id: health
    url: "`+health.URL+`"
    metrics:
      - path: number_of_nodes
  - id: nodes
    url: "`+down.URL+`"
    metrics:
      - path: number_of_nodes
`)

	sched := New(cfg, "", 5*time.Millisecond, log.NewNopLogger())
	samples, warnings, err := sched.Scrape(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, warnings)

	byName := map[string][]sample.Sample{}
	for _, s := range samples {
		byName[s.Name] = append(byName[s.Name], s)
	}
	require.Contains(t, byName, "elasticsearch_number_of_nodes")
	require.Len(t, byName["elasticsearch_number_of_nodes"], 1)

	var sawHealthUp, sawNodesDown bool
	for _, s := range byName["elasticsearch_up"] {
		for _, l := range s.Labels {
			if l.Name == "endpoint" && l.Value == "health" && s.Value == 1 {
				sawHealthUp = true
			}
			if l.Name == "endpoint" && l.Value == "nodes" && s.Value == 0 {
				sawNodesDown = true
			}
		}
	}
	require.True(t, sawHealthUp)
	require.True(t, sawNodesDown)
}

func TestScrape_GlobalLabelAppliedAsDefault(t *testing.T) {
	cluster := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"cluster_name":"c1"}`))
	}))
	defer cluster.Close()

	health := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"green"}`))
	}))
	defer health.Close()

	cfg := writeConfig(t, `
namespace: elasticsearch
global_labels:
  - url: "`+cluster.URL+`"
    labels:
      - {name: cluster, value: "${$.cluster_name}"}
endpoints:
  - id: health
    url: "`+health.URL+`"
    metrics:
      - path: status
        name: up
        labels:
          - {name: cluster, value: endpoint-wins}
        modifiers:
          - {name: eq, args: {token: green}}
`)

	sched := New(cfg, "", time.Second, log.NewNopLogger())
	samples, _, err := sched.Scrape(context.Background())
	require.NoError(t, err)

	for _, s := range samples {
		if s.Name != "elasticsearch_up" {
			continue
		}
		for _, l := range s.Labels {
			if l.Name == "cluster" {
				require.Equal(t, "endpoint-wins", l.Value)
			}
		}
	}
}
