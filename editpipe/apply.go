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

package editpipe

import (
	"sort"
	"strings"

	"github.com/wukunhuan/gds/gerrors"
	"github.com/wukunhuan/gds/model"
)

// expandPlaceholders resolves the whitespace placeholder tokens the spec's
// wire format uses because literal leading/trailing spaces are easy to lose
// in transit: _SPACE_/_SP_ become a space, _4SP_ a 4-space indent, _TAB_ a
// tab, and literal "\n" sequences become real newlines.
func expandPlaceholders(s string) string {
	r := strings.NewReplacer(
		`\n`, "\n",
		"_SPACE_", " ",
		"_SP_", " ",
		"_4SP_", "    ",
		"_TAB_", "\t",
	)
	return r.Replace(s)
}

// Apply runs a parsed batch of ReplacementOps against lines (each already
// including its trailing newline except possibly the last), in the order
// text_operations.py enforces: insertions first in descending line order,
// then range replacements in descending order, then text substitutions
// against the whole joined content — each phase processed back-to-front so
// earlier edits don't shift the line numbers later ones reference.
func Apply(lines []string, ops []model.ReplacementOp) ([]string, error) {
	lastHadNewline := len(lines) == 0 || strings.HasSuffix(lines[len(lines)-1], "\n")

	out := make([]string, len(lines))
	copy(out, lines)

	var inserts, ranges, texts []model.ReplacementOp
	for _, op := range ops {
		switch op.Kind {
		case model.InsertAfter:
			inserts = append(inserts, op)
		case model.ReplaceRange:
			ranges = append(ranges, op)
		case model.TextSubstitution:
			texts = append(texts, op)
		default:
			return nil, gerrors.SyntaxError(errUnknownKind(op.Kind))
		}
	}

	sort.Slice(inserts, func(i, j int) bool { return inserts[i].StartLine > inserts[j].StartLine })
	for _, op := range inserts {
		newLines := splitKeepNewline(expandPlaceholders(op.NewContent))
		pos := op.StartLine
		if pos > len(out) {
			pos = len(out)
		}
		out = append(out[:pos], append(newLines, out[pos:]...)...)
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].StartLine > ranges[j].StartLine })
	for _, op := range ranges {
		newLines := splitKeepNewline(expandPlaceholders(op.NewContent))
		end := op.EndLine + 1
		if end > len(out) {
			end = len(out)
		}
		out = append(out[:op.StartLine], append(newLines, out[end:]...)...)
	}

	joined := strings.Join(out, "")
	for _, op := range texts {
		joined = strings.ReplaceAll(joined, op.OldText, expandPlaceholders(op.NewContent))
	}
	out = splitKeepNewline(joined)

	if len(out) > 0 {
		last := out[len(out)-1]
		if lastHadNewline && !strings.HasSuffix(last, "\n") {
			out[len(out)-1] = last + "\n"
		} else if !lastHadNewline && strings.HasSuffix(last, "\n") {
			out[len(out)-1] = strings.TrimSuffix(last, "\n")
		}
	}

	return out, nil
}

// Lines splits file content into the newline-preserving representation
// Apply and ParseSpec both work in, so a caller never has to know about
// splitKeepNewline's internal convention.
func Lines(content string) []string {
	return splitKeepNewline(content)
}

// splitKeepNewline splits content into lines, each carrying its own
// trailing "\n" (except a possible final partial line), the representation
// Apply works in throughout.
func splitKeepNewline(content string) []string {
	if content == "" {
		return nil
	}
	parts := strings.SplitAfter(content, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

type unknownKindError struct{ kind model.ReplacementKind }

func (e unknownKindError) Error() string {
	return "editpipe: unknown replacement kind"
}

func errUnknownKind(k model.ReplacementKind) error { return unknownKindError{kind: k} }
