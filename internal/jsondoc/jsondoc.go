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

// Package jsondoc decodes a JSON document into a tree that preserves
// object key insertion order, which encoding/json's map[string]interface{}
// does not guarantee. Wildcard path expansion over a JSON object must
// iterate its keys in the order the upstream JSON parser produced them,
// so every JSON document the exporter walks is decoded through this
// package rather than json.Unmarshal into a bare map.
package jsondoc

import (
	"encoding/json"
	"fmt"
	"io"
)

// Object is a JSON object that remembers the order its keys were decoded
// in. It is the only object representation the extraction engine ever
// sees.
type Object struct {
	keys   []string
	values map[string]interface{}
}

// Keys returns the object's keys in source order.
func (o *Object) Keys() []string {
	return o.keys
}

// Get looks up a key, reporting whether it was present.
func (o *Object) Get(key string) (interface{}, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Len reports the number of keys in the object.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

func newObject() *Object {
	return &Object{values: make(map[string]interface{})}
}

func (o *Object) set(key string, val interface{}) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = val
}

// Decode reads a single JSON document from r, producing a tree of
// *Object, []interface{}, string, float64, bool, and nil values.
func Decode(r io.Reader) (interface{}, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (interface{}, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := newObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("jsondoc: object key is not a string: %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.set(key, val)
			}
			// consume closing '}'
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			var arr []interface{}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			if arr == nil {
				arr = []interface{}{}
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("jsondoc: unexpected delimiter %v", t)
		}
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("jsondoc: number %q: %w", t, err)
		}
		return f, nil
	case nil, string, bool:
		return t, nil
	default:
		return nil, fmt.Errorf("jsondoc: unexpected token %v (%T)", tok, tok)
	}
}
