// Copyright 2015 Google Inc. All Rights Reserved.
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

// Package editpipe is the Edit Pipeline (C11): download, parse a
// replacement spec, apply it, diff, optionally back up, and re-upload. The
// replacement grammar ([start, end] ranges, [line, null] insertions, and
// plain string search/replace) follows text_operations.py's parser.
package editpipe

import (
	"fmt"

	"github.com/wukunhuan/gds/gerrors"
	"github.com/wukunhuan/gds/model"
)

// RawReplacement is one [source, target] pair as supplied by the caller,
// before validation against the file's current line count.
type RawReplacement struct {
	// LineRange is set for [start, end] or [line, null] sources; StartLine
	// is always present, EndLine is a pointer so nil distinguishes the
	// insertion form from a one-line range replacement.
	LineRange bool
	StartLine int
	EndLine   *int

	// TextSearch is set when the source is a plain string instead of a
	// [start, end] pair.
	TextSearch bool
	OldText    string

	NewContent string
}

// ParseSpec validates a batch of raw replacements against a file's current
// line count (0-based, inclusive [start, end] per the `read` command's own
// convention) and produces model.ReplacementOp values ready to apply.
func ParseSpec(raw []RawReplacement, lines []string, fullText string) ([]model.ReplacementOp, error) {
	ops := make([]model.ReplacementOp, 0, len(raw))

	for i, r := range raw {
		switch {
		case r.TextSearch:
			if r.OldText == "" {
				return nil, gerrors.SyntaxError(fmt.Errorf("editpipe: replacement %d: empty search text", i))
			}
			ops = append(ops, model.ReplacementOp{
				Kind:    model.TextSubstitution,
				OldText: r.OldText,
				NewContent: r.NewContent,
			})

		case r.LineRange && r.EndLine == nil:
			if r.StartLine < 0 || r.StartLine > len(lines) {
				return nil, gerrors.SyntaxError(fmt.Errorf(
					"editpipe: replacement %d: insert line %d out of range [0, %d]", i, r.StartLine, len(lines)))
			}
			ops = append(ops, model.ReplacementOp{
				Kind:       model.InsertAfter,
				StartLine:  r.StartLine,
				NewContent: r.NewContent,
			})

		case r.LineRange:
			end := *r.EndLine
			if r.StartLine < 0 || r.StartLine >= len(lines) || end >= len(lines) || r.StartLine > end {
				return nil, gerrors.SyntaxError(fmt.Errorf(
					"editpipe: replacement %d: range [%d, %d] invalid for %d lines", i, r.StartLine, end, len(lines)))
			}
			ops = append(ops, model.ReplacementOp{
				Kind:       model.ReplaceRange,
				StartLine:  r.StartLine,
				EndLine:    end,
				NewContent: r.NewContent,
			})

		default:
			return nil, gerrors.SyntaxError(fmt.Errorf("editpipe: replacement %d: unrecognized source form", i))
		}
	}

	return ops, nil
}
