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
	"fmt"

	"github.com/quantilelabs/json-exporter/internal/config"
	"github.com/quantilelabs/json-exporter/internal/expr"
	"github.com/quantilelabs/json-exporter/internal/urltemplate"
)

// noCaptures is passed when evaluating a global label's value expression:
// global labels are resolved against the fetched root directly, with no
// enclosing path match to supply positional captures.
var noCaptures = expr.Captures{}

// resolveGlobalLabels fetches one GlobalLabelSource and evaluates every
// configured label expression against its root JSON. A label whose
// value expression cannot be resolved is simply omitted, not a fetch
// failure.
func (s *Scheduler) resolveGlobalLabels(ctx context.Context, gl *config.GlobalLabelSource) (map[string]string, error) {
	url, err := gl.EffectiveURL()
	if err != nil {
		return nil, fmt.Errorf("url: %w", err)
	}
	url = urltemplate.WithBase(s.baseURL, url)

	root, err := s.fetchJSON(ctx, url)
	if err != nil {
		return nil, err
	}

	out := map[string]string{}
	for _, lbl := range gl.Labels {
		v, ok := lbl.Value.Eval(root, noCaptures)
		if !ok {
			continue
		}
		out[lbl.Name] = v
	}
	return out, nil
}
