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
	"fmt"
	"strings"
)

// QuoteInvocation renders cmd/argv as a single bash-safe invocation string.
// python -c/bash -c/sh -c get their script argument double-quoted as a unit
// (so the script's own single quotes survive); every other command gets its
// arguments POSIX single-quoted independently, the same split the original
// implementation's _generate_remote_command makes between shlex.quote and a
// bespoke double-quote escape for -c payloads.
func QuoteInvocation(cmd string, argv []string) (string, error) {
	if isDashCInvocation(cmd, argv) {
		script := argv[1]
		escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`).Replace(script)
		return fmt.Sprintf("%s -c \"%s\"", cmd, escaped), nil
	}

	parts := make([]string, 0, len(argv)+1)
	parts = append(parts, singleQuote(cmd))
	for _, a := range argv {
		parts = append(parts, singleQuote(a))
	}
	return strings.Join(parts, " "), nil
}

func isDashCInvocation(cmd string, argv []string) bool {
	if len(argv) < 2 || argv[0] != "-c" {
		return false
	}
	switch cmd {
	case "python", "python3", "bash", "sh":
		return true
	default:
		return false
	}
}

// singleQuote applies the standard POSIX shell single-quote escape: close
// the quote, emit an escaped literal quote, reopen.
func singleQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// escapeForDisplay makes a command safe to place inside a double-quoted
// echo, per RemoteCommands._escape_for_display: backslashes first, then
// double quotes, dollar signs and backticks. Parens/brackets/braces need no
// escaping inside double quotes.
func escapeForDisplay(command string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		`$`, `\$`,
		"`", "\\`",
	)
	return r.Replace(command)
}
