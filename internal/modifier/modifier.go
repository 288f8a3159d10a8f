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

// Package modifier implements the scalar transform pipeline applied to
// leaf values during extraction. Modifiers are a small open tagged
// variant: adding a new kind means adding a case to config's
// compileModifier and an implementation of Modifier.
package modifier

import (
	"fmt"
	"math"
	"strconv"
)

// Scalar is the value flowing through the modifier pipeline. It may be a
// number, a boolean, or a string: the raw JSON leaf value before any
// modifier has had a chance to coerce it, since a modifier such as mul
// or eq can change its type along the way.
type Scalar struct {
	raw interface{}
}

// FromJSON wraps a decoded JSON leaf value. Callers must only pass
// float64, bool, or string; object/array/nil leaves are dropped before
// reaching the pipeline and have no Scalar form.
func FromJSON(v interface{}) (Scalar, bool) {
	switch v.(type) {
	case float64, bool, string:
		return Scalar{raw: v}, true
	default:
		return Scalar{}, false
	}
}

// Stringify renders the scalar for equality comparisons (used by eq).
func (s Scalar) Stringify() string {
	switch t := s.raw.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// Float attempts to coerce the scalar to a float64, as the final
// exposition value requires.
func (s Scalar) Float() (float64, bool) {
	switch t := s.raw.(type) {
	case float64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func fromFloat(f float64) Scalar { return Scalar{raw: f} }

// Modifier is one step of the pipeline. Apply returns the transformed
// scalar and whether the sample survives; err signals a fatal per-sample
// error (e.g. mul against a non-numeric value), which callers log at
// warn and treat exactly like a suppression.
type Modifier interface {
	Apply(s Scalar) (out Scalar, keep bool, err error)
	// Name identifies the modifier kind, for logging and config errors.
	Name() string
}

// Mul multiplies a numeric scalar by a fixed factor.
type Mul struct {
	Factor float64
}

func (m Mul) Name() string { return "mul" }

func (m Mul) Apply(s Scalar) (Scalar, bool, error) {
	f, ok := s.Float()
	if !ok {
		return Scalar{}, false, fmt.Errorf("mul: value %q is not numeric", s.Stringify())
	}
	return fromFloat(f * m.Factor), true, nil
}

// Eq suppresses the sample unless the scalar stringifies to Token, in
// which case the sample becomes the constant 1.0.
type Eq struct {
	Token string
}

func (e Eq) Name() string { return "eq" }

func (e Eq) Apply(s Scalar) (Scalar, bool, error) {
	if s.Stringify() != e.Token {
		return Scalar{}, false, nil
	}
	return fromFloat(1.0), true, nil
}

// Apply applies an ordered list of modifiers, as prepared by the
// extraction engine (parent modifiers prepend to node-local ones). It
// returns the final numeric value, or keep=false if the pipeline
// suppressed the sample, or err != nil on a fatal per-sample error
// (non-numeric input to mul). The result must also be a finite float64:
// a string leaf like "NaN" or "+Inf" parses without error, and mul can
// overflow to infinity, so both are rejected here rather than emitted
// to /metrics.
func Apply(chain []Modifier, s Scalar) (value float64, keep bool, err error) {
	cur := s
	for _, m := range chain {
		cur, keep, err = m.Apply(cur)
		if err != nil {
			return 0, false, err
		}
		if !keep {
			return 0, false, nil
		}
	}
	f, ok := cur.Float()
	if !ok || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false, nil
	}
	return f, true, nil
}
