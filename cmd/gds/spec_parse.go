// Copyright 2013 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/wukunhuan/gds/editpipe"
)

// parseReplacementSpecJSON decodes the wire form of §3's "Replacement
// Spec" — a JSON array of [[start,end]|[line,null]|"old_text", new_content]
// pairs — into the RawReplacement shape editpipe.ParseSpec validates.
func parseReplacementSpecJSON(spec string) ([]editpipe.RawReplacement, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(spec), &raw); err != nil {
		return nil, fmt.Errorf("edit: parsing replacement spec: %w", err)
	}

	out := make([]editpipe.RawReplacement, 0, len(raw))
	for i, elem := range raw {
		var pair [2]json.RawMessage
		if err := json.Unmarshal(elem, &pair); err != nil {
			return nil, fmt.Errorf("edit: replacement %d: expected a 2-element array: %w", i, err)
		}

		var newContent string
		if err := json.Unmarshal(pair[1], &newContent); err != nil {
			return nil, fmt.Errorf("edit: replacement %d: new_content must be a string: %w", i, err)
		}

		var textSource string
		if err := json.Unmarshal(pair[0], &textSource); err == nil {
			out = append(out, editpipe.RawReplacement{TextSearch: true, OldText: textSource, NewContent: newContent})
			continue
		}

		var linePair [2]json.RawMessage
		if err := json.Unmarshal(pair[0], &linePair); err != nil {
			return nil, fmt.Errorf("edit: replacement %d: unrecognized source form", i)
		}
		var start int
		if err := json.Unmarshal(linePair[0], &start); err != nil {
			return nil, fmt.Errorf("edit: replacement %d: start line must be an integer: %w", i, err)
		}
		if string(linePair[1]) == "null" {
			out = append(out, editpipe.RawReplacement{LineRange: true, StartLine: start, EndLine: nil, NewContent: newContent})
			continue
		}
		var end int
		if err := json.Unmarshal(linePair[1], &end); err != nil {
			return nil, fmt.Errorf("edit: replacement %d: end line must be an integer or null: %w", i, err)
		}
		out = append(out, editpipe.RawReplacement{LineRange: true, StartLine: start, EndLine: &end, NewContent: newContent})
	}
	return out, nil
}

// decodeUTF8Replacement decodes data as UTF-8, substituting U+FFFD for any
// invalid byte sequence rather than failing, per §6 `cat`'s contract.
func decodeUTF8Replacement(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	buf := make([]rune, 0, len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		buf = append(buf, r)
		data = data[size:]
	}
	return string(buf)
}
