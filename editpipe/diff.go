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
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/wukunhuan/gds/gerrors"
)

// UnifiedDiff renders before/after line sets as a unified diff, the
// in-process replacement for the teacher's os/exec shellout to an external
// diff binary in src/diff.go — pmezard/go-difflib is the library the rest
// of the retrieved pack already reaches for to do this in Go.
func UnifiedDiff(path string, before, after []string) (string, error) {
	ud := difflib.UnifiedDiff{
		A:        before,
		B:        after,
		FromFile: path + ".orig",
		ToFile:   path,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return "", gerrors.SyntaxError(fmt.Errorf("editpipe: diff %s: %w", path, err))
	}
	return text, nil
}

// Linter is the collaborator hook run on the edited content after the edit
// has been re-uploaded; the edit command only logs its error and does not
// undo the upload. GDS ships only the default pass-through.
type Linter interface {
	Lint(path string, content []string) error
}

type noopLinter struct{}

func (noopLinter) Lint(string, []string) error { return nil }

// DefaultLinter never rejects an edit.
var DefaultLinter Linter = noopLinter{}

// BackupPath names a millisecond-timestamped backup sibling of path, e.g.
// notes.txt.backup.1700000000000, matching the naming §4.10 specifies.
func BackupPath(path string) string {
	return fmt.Sprintf("%s.backup.%d", path, time.Now().UnixMilli())
}

// WriteBackup writes content to BackupPath(path) before the edit is
// re-uploaded, when the caller has opted into keeping one.
func WriteBackup(path string, content []byte) (string, error) {
	backupPath := BackupPath(path)
	if err := os.WriteFile(backupPath, content, 0644); err != nil {
		return "", gerrors.StagingFailure(fmt.Errorf("editpipe: backup %s: %w", path, err))
	}
	return backupPath, nil
}

// JoinLines reassembles a line slice (each already newline-terminated
// except possibly the last) back into file content.
func JoinLines(lines []string) string {
	return strings.Join(lines, "")
}
