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

package venv

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/wukunhuan/gds/gerrors"
	"github.com/wukunhuan/gds/model"
)

// WriteScript builds a bash one-liner that overwrites statesPath with vs in
// one atomic write, base64-encoding the JSON payload and piping it through
// `python3 -c` the way remote_commands.py re-encodes arguments that contain
// shell metacharacters before handing them to a remote interpreter, so a
// package name or path holding quotes or newlines can never break the shell
// line that carries it.
func WriteScript(statesPath string, vs *model.VenvStates) (string, error) {
	payload, err := json.Marshal(vs)
	if err != nil {
		return "", gerrors.SyntaxError(fmt.Errorf("venv: marshal states: %w", err))
	}
	encoded := base64.StdEncoding.EncodeToString(payload)

	script := fmt.Sprintf(`python3 -c "
import base64, json, os
payload = base64.b64decode('%s')
tmp = %q + '.tmp'
with open(tmp, 'wb') as f:
    f.write(payload)
os.replace(tmp, %q)
"
`, encoded, statesPath, statesPath)
	return script, nil
}

// ActivateScript builds the bash that creates envPath (if missing) via
// `python3 -m venv` and reports success, grounded on shell_commands.py's
// venv-activation path which shells out to the same stdlib module.
func ActivateScript(envPath string) string {
	return fmt.Sprintf(`if [ ! -d %q ]; then python3 -m venv %q; fi
echo "activated:%s"
`, envPath, envPath, envPath)
}

// InstallScript builds the `pip install` invocation for one package inside
// envPath's virtualenv, followed by a `pip freeze` so the caller can diff
// the resulting manifest via Store.RecordInstalls.
func InstallScript(envPath, pkg string) string {
	pip := envPath + "/bin/pip"
	return fmt.Sprintf(`%q install %q >/dev/null 2>&1
%q freeze
`, pip, pkg, pip)
}

// ParseFreezeOutput turns `pip freeze`'s "name==version" lines into the
// manifest map RecordInstalls diffs against the stored one.
func ParseFreezeOutput(freeze string) map[string]string {
	manifest := map[string]string{}
	start := 0
	for i := 0; i <= len(freeze); i++ {
		if i == len(freeze) || freeze[i] == '\n' {
			line := freeze[start:i]
			start = i + 1
			if line == "" {
				continue
			}
			name, version, ok := splitFreezeLine(line)
			if ok {
				manifest[name] = version
			}
		}
	}
	return manifest
}

func splitFreezeLine(line string) (name, version string, ok bool) {
	for i := 0; i+1 < len(line); i++ {
		if line[i] == '=' && line[i+1] == '=' {
			return line[:i], line[i+2:], true
		}
	}
	return "", "", false
}
