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

package expo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantilelabs/json-exporter/internal/sample"
)

func TestWrite_GaugeScalar(t *testing.T) {
	var buf strings.Builder
	warnings, err := Write(&buf, []sample.Sample{
		{Name: "elasticsearch_number_of_nodes", Type: sample.Gauge, Value: 3},
	})
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Contains(t, buf.String(), "# TYPE elasticsearch_number_of_nodes gauge")
	require.Contains(t, buf.String(), "elasticsearch_number_of_nodes 3")
}

func TestWrite_LabelsSortedLexicographically(t *testing.T) {
	var buf strings.Builder
	_, err := Write(&buf, []sample.Sample{
		{
			Name: "elasticsearch_status",
			Type: sample.Gauge,
			Labels: []sample.Label{
				{Name: "zone", Value: "z1"},
				{Name: "color", Value: "yellow"},
			},
			Value: 1,
		},
	})
	require.NoError(t, err)
	out := buf.String()
	require.True(t, strings.Index(out, `color="yellow"`) < strings.Index(out, `zone="z1"`))
}

func TestWrite_TypeConflictDropsSample(t *testing.T) {
	var buf strings.Builder
	warnings, err := Write(&buf, []sample.Sample{
		{Name: "elasticsearch_query_time_seconds", Type: sample.Counter, Value: 2.5},
		{Name: "elasticsearch_query_time_seconds", Type: sample.Gauge, Value: 1},
	})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	out := buf.String()
	require.Contains(t, out, "# TYPE elasticsearch_query_time_seconds counter")
	require.Contains(t, out, "elasticsearch_query_time_seconds 2.5")
	require.NotContains(t, out, "elasticsearch_query_time_seconds 1\n")
}

func TestWrite_FamilyOrderIsFirstSeen(t *testing.T) {
	var buf strings.Builder
	_, err := Write(&buf, []sample.Sample{
		{Name: "b_metric", Type: sample.Gauge, Value: 1},
		{Name: "a_metric", Type: sample.Gauge, Value: 2},
	})
	require.NoError(t, err)
	out := buf.String()
	require.True(t, strings.Index(out, "b_metric") < strings.Index(out, "a_metric"))
}
