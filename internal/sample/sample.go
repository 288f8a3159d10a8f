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

// Package sample defines the flat, label-decorated measurement that flows
// from the extraction engine to the exposition sink.
package sample

// Type is the Prometheus metric type hint carried by a Sample.
type Type string

const (
	Gauge   Type = "gauge"
	Counter Type = "counter"
)

// Label is a single name/value pair. Samples keep labels in an ordered
// slice rather than a map so that override semantics (last write wins)
// can be applied without relying on map iteration order.
type Label struct {
	Name  string
	Value string
}

// Sample is one (name, type, labels, value) tuple ready for exposition.
type Sample struct {
	Name   string
	Type   Type
	Labels []Label
	Value  float64
}

// WithLabel returns a copy of the label set with name set to value,
// overriding any existing label of the same name in place and preserving
// its original position, or appending if the name is new.
func WithLabel(labels []Label, name, value string) []Label {
	out := make([]Label, len(labels))
	copy(out, labels)
	for i := range out {
		if out[i].Name == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, Label{Name: name, Value: value})
}

// WithDefaultLabel appends name=value only if no label of that name is
// already present. Used to apply global labels, which must never override
// endpoint-supplied labels.
func WithDefaultLabel(labels []Label, name, value string) []Label {
	for _, l := range labels {
		if l.Name == name {
			return labels
		}
	}
	out := make([]Label, len(labels), len(labels)+1)
	copy(out, labels)
	return append(out, Label{Name: name, Value: value})
}
