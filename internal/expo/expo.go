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

// Package expo implements the exposition sink: it takes an ordered
// stream of samples and writes Prometheus text format, grouping by
// metric name in first-seen order and rejecting type-inconsistent
// families one sample at a time rather than failing the whole scrape.
package expo

import (
	"fmt"
	"io"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/quantilelabs/json-exporter/internal/sample"
)

// family accumulates the metrics for one name until Write flushes them,
// preserving first-seen sample order within the family.
type family struct {
	typ     sample.Type
	metrics []*dto.Metric
}

// Write encodes samples as Prometheus text format. Samples whose type
// disagrees with the first sample seen for that metric name
// are dropped and reported via warn, rather than aborting the write.
func Write(w io.Writer, samples []sample.Sample) (warnings []string, err error) {
	var order []string
	families := map[string]*family{}

	for _, s := range samples {
		f, ok := families[s.Name]
		if !ok {
			f = &family{typ: s.Type}
			families[s.Name] = f
			order = append(order, s.Name)
		}
		if f.typ != s.Type {
			warnings = append(warnings, fmt.Sprintf("dropped sample %q: type %q conflicts with family type %q", s.Name, s.Type, f.typ))
			continue
		}
		f.metrics = append(f.metrics, toDTOMetric(s))
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, name := range order {
		f := families[name]
		if len(f.metrics) == 0 {
			continue
		}
		mf := &dto.MetricFamily{
			Name:   strPtr(name),
			Type:   dtoType(f.typ).Enum(),
			Metric: f.metrics,
		}
		if err := enc.Encode(mf); err != nil {
			return warnings, fmt.Errorf("expo: encode family %q: %w", name, err)
		}
	}
	return warnings, nil
}

// toDTOMetric converts one Sample into the protobuf shape expfmt
// expects, sorting label names lexicographically.
func toDTOMetric(s sample.Sample) *dto.Metric {
	labels := make([]*dto.LabelPair, 0, len(s.Labels))
	for _, l := range sortedLabels(s.Labels) {
		labels = append(labels, &dto.LabelPair{Name: strPtr(l.Name), Value: strPtr(l.Value)})
	}
	m := &dto.Metric{Label: labels}
	switch s.Type {
	case sample.Counter:
		m.Counter = &dto.Counter{Value: floatPtr(s.Value)}
	default:
		m.Gauge = &dto.Gauge{Value: floatPtr(s.Value)}
	}
	return m
}

func sortedLabels(labels []sample.Label) []sample.Label {
	out := make([]sample.Label, len(labels))
	copy(out, labels)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Name > out[j].Name; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func dtoType(t sample.Type) dto.MetricType {
	if t == sample.Counter {
		return dto.MetricType_COUNTER
	}
	return dto.MetricType_GAUGE
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
