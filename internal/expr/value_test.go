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

package expr

import (
	"strings"
	"testing"

	"github.com/quantilelabs/json-exporter/internal/jsondoc"
	"github.com/stretchr/testify/require"
)

func TestValue_Eval(t *testing.T) {
	cases := []struct {
		doc      string
		expr     string
		node     string
		captures []string
		want     string
		wantOK   bool
	}{
		{
			doc:    "pure literal",
			expr:   "green",
			node:   `{}`,
			wantOK: true,
			want:   "green",
		},
		{
			doc:      "positional capture",
			expr:     "$1",
			node:     `{}`,
			captures: []string{"search"},
			wantOK:   true,
			want:     "search",
		},
		{
			doc:      "braced positional capture concatenated with a literal",
			expr:     "${0}_count",
			node:     `{}`,
			captures: []string{"thread_pool", "search"},
			wantOK:   true,
			want:     "thread_pool_search_count",
		},
		{
			doc:    "pure jsonpath",
			expr:   "${$.name}",
			node:   `{"name":"es-01"}`,
			wantOK: true,
			want:   "es-01",
		},
		{
			doc:    "jsonpath concatenated with a literal prefix",
			expr:   "host_${$.name}",
			node:   `{"name":"es-01"}`,
			wantOK: true,
			want:   "host_es-01",
		},
		{
			doc:    "missing jsonpath field drops the sample",
			expr:   "${$.missing}",
			node:   `{"name":"es-01"}`,
			wantOK: false,
		},
		{
			doc:      "missing capture slot is a compile/runtime bug, not ok",
			expr:     "$2",
			node:     `{}`,
			captures: []string{"only-one"},
			wantOK:   false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.doc, func(t *testing.T) {
			v, err := CompileValue(tc.expr)
			require.NoError(t, err)
			node, err := jsondoc.Decode(strings.NewReader(tc.node))
			require.NoError(t, err)
			got, ok := v.Eval(node, Captures{All: tc.captures, Own: tc.captures})
			require.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				require.Equal(t, tc.want, got)
			}
		})
	}
}

func TestCompileValue_Malformed(t *testing.T) {
	cases := []string{
		"${$.a[0]}",
		"${}",
		"${unrecognized}",
	}
	for _, raw := range cases {
		t.Run(raw, func(t *testing.T) {
			_, err := CompileValue(raw)
			require.Error(t, err)
		})
	}
}
