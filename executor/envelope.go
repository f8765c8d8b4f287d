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

// Package executor is the Remote Command Executor (C7): it wraps a user's
// bash command in a result-capturing bash envelope, hands the envelope to a
// CommandPresenter for the human (or a GUI dialog) to run on the vendor
// desktop, then polls REMOTE_ROOT/tmp for the sentinel JSON result file the
// envelope writes on completion.
package executor

import (
	"crypto/md5"
	"fmt"
	"strings"
	"time"

	"github.com/wukunhuan/gds/model"
)

// Envelope is the generated bash wrapper plus the bookkeeping needed to find
// its result file afterward.
type Envelope struct {
	Script         string
	ResultFilename string
	CmdHash        string
}

// Build renders cmd/argv into a self-contained bash script that redirects
// stdout/stderr to files under remoteRoot/tmp, captures the exit code, and
// emits a JSON result document, mirroring
// RemoteCommands._generate_remote_command in the original implementation.
func Build(cmd string, argv []string, remotePath, remoteRoot string) (*Envelope, error) {
	now := time.Now()
	timestamp := now.Unix()
	cmdHash := hashCmd(cmd, argv, timestamp)
	resultFilename := fmt.Sprintf("cmd_%d_%s.json", timestamp, cmdHash)
	resultPath := fmt.Sprintf("%s/tmp/%s", remoteRoot, resultFilename)

	bashSafe, err := QuoteInvocation(cmd, argv)
	if err != nil {
		return nil, err
	}
	display := escapeForDisplay(displayInvocation(cmd, argv))

	outFile := fmt.Sprintf("%s/tmp/cmd_stdout_%d_%s", remoteRoot, timestamp, cmdHash)
	errFile := fmt.Sprintf("%s/tmp/cmd_stderr_%d_%s", remoteRoot, timestamp, cmdHash)
	exitFile := fmt.Sprintf("%s/tmp/cmd_exitcode_%d_%s", remoteRoot, timestamp, cmdHash)

	argsJSON := argvJSON(argv)

	var b strings.Builder
	fmt.Fprintf(&b, "cd %q && {\n", remotePath)
	fmt.Fprintf(&b, "  mkdir -p %q\n", remoteRoot+"/tmp")
	fmt.Fprintf(&b, "  echo \"running: %s\"\n", display)
	fmt.Fprintf(&b, "  OUTPUT_FILE=%q\n", outFile)
	fmt.Fprintf(&b, "  ERROR_FILE=%q\n", errFile)
	fmt.Fprintf(&b, "  EXITCODE_FILE=%q\n", exitFile)
	b.WriteString("  set +e\n")
	fmt.Fprintf(&b, "  %s > \"$OUTPUT_FILE\" 2> \"$ERROR_FILE\"\n", bashSafe)
	b.WriteString("  EXIT_CODE=$?\n")
	b.WriteString("  echo \"$EXIT_CODE\" > \"$EXITCODE_FILE\"\n")
	b.WriteString("  set -e\n")
	b.WriteString("  [ -s \"$OUTPUT_FILE\" ] && cat \"$OUTPUT_FILE\"\n")
	b.WriteString("  [ -s \"$ERROR_FILE\" ] && cat \"$ERROR_FILE\" >&2\n")
	fmt.Fprintf(&b, "  python3 << 'EOF' > %q\n", resultPath)
	b.WriteString(sentinelPythonSource(cmd, argsJSON, outFile, errFile, exitFile))
	b.WriteString("EOF\n")
	fmt.Fprintf(&b, "  rm -f \"$OUTPUT_FILE\" \"$ERROR_FILE\" \"$EXITCODE_FILE\"\n")
	b.WriteString("}")

	return &Envelope{Script: b.String(), ResultFilename: resultFilename, CmdHash: cmdHash}, nil
}

func hashCmd(cmd string, argv []string, timestamp int64) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%s_%d", cmd, strings.Join(argv, " "), timestamp)))
	return fmt.Sprintf("%x", sum)[:8]
}

func displayInvocation(cmd string, argv []string) string {
	if len(argv) == 0 {
		return cmd
	}
	return cmd + " " + strings.Join(argv, " ")
}

func argvJSON(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = jsonQuote(a)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func jsonQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// sentinelPythonSource mirrors the heredoc RemoteCommands._generate_remote_command
// embeds: read the three capture files back, build the JSON result document.
func sentinelPythonSource(cmd, argsJSON, outFile, errFile, exitFile string) string {
	return fmt.Sprintf(`import json, os
from datetime import datetime

def _read(path):
    if not os.path.exists(path):
        return ""
    with open(path, "r", encoding="utf-8", errors="ignore") as f:
        return f.read()

raw_stdout = _read(%q)
raw_stderr = _read(%q)
exit_code = -1
if os.path.exists(%q):
    try:
        exit_code = int(open(%q).read().strip())
    except Exception:
        exit_code = -1

result = {
    "cmd": %q,
    "args": %s,
    "working_dir": os.getcwd(),
    "timestamp": datetime.now().isoformat(),
    "exit_code": exit_code,
    "stdout": raw_stdout.strip(),
    "stderr": raw_stderr.strip(),
    "raw_output": raw_stdout,
    "raw_error": raw_stderr,
    "debug_info": "",
}
print(json.dumps(result, indent=2, ensure_ascii=False))
`, outFile, errFile, exitFile, exitFile, cmd, argsJSON)
}

// DefaultSentinel is returned when a result file never appears and no
// fallback feedback is available.
func DefaultSentinel() model.SentinelResult {
	return model.DefaultSentinel()
}
