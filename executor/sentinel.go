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

package executor

import (
	"encoding/json"
	"strings"

	"github.com/wukunhuan/gds/model"
)

// DebugBuffer accumulates diagnostic lines for a single command invocation;
// they are surfaced to the user only when direct feedback is used, the
// per-invocation replacement for the original's process-global DebugCapture.
type DebugBuffer struct {
	lines []string
}

func NewDebugBuffer() *DebugBuffer { return &DebugBuffer{} }

func (d *DebugBuffer) Add(line string) {
	if d == nil {
		return
	}
	d.lines = append(d.lines, line)
}

func (d *DebugBuffer) String() string {
	if d == nil {
		return ""
	}
	return strings.Join(d.lines, "\n")
}

// parseSentinel parses the sentinel result file's content into a
// SentinelResult, repairing a bare (unbraced) object body before
// unmarshalling, mirroring _preprocess_json_content.
func parseSentinel(content string) (model.SentinelResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.SentinelResult{ExitCode: -1, Stderr: "empty result content"}, nil
	}

	repaired := content
	if !strings.HasPrefix(repaired, "{") {
		repaired = "{" + repaired
	}
	if !strings.HasSuffix(repaired, "}") {
		repaired = repaired + "}"
	}

	res := model.DefaultSentinel()
	if err := json.Unmarshal([]byte(repaired), &res); err != nil {
		return model.SentinelResult{
			ExitCode:  -1,
			Stdout:    content,
			RawOutput: content,
			Stderr:    "json parse failed: " + err.Error(),
		}, nil
	}
	return res, nil
}

// directFeedbackKeywords are scanned in pasted output to infer failure when
// the user supplies direct feedback instead of letting the sentinel poll
// resolve, per RemoteCommands' heuristic for user-pasted results.
var directFeedbackKeywords = []string{
	"Traceback (most recent call last)",
	"command not found",
	"No such file or directory",
	"Permission denied",
	"error:",
	"Error:",
	"fatal:",
}

// inferExitCode returns 0 unless the pasted text contains one of the known
// failure markers, in which case it returns 1. Direct feedback carries no
// machine-reported exit code, so this is a best-effort guess only (§4.6).
func inferExitCode(pastedOutput string) int {
	for _, kw := range directFeedbackKeywords {
		if strings.Contains(pastedOutput, kw) {
			return 1
		}
	}
	return 0
}
