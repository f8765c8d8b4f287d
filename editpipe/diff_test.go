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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUnifiedDiffShowsChangedLines(t *testing.T) {
	before := Lines("one\ntwo\nthree\n")
	after := Lines("one\nTWO\nthree\n")

	diff, err := UnifiedDiff("notes.txt", before, after)
	if err != nil {
		t.Fatalf("UnifiedDiff: %v", err)
	}
	if !strings.Contains(diff, "-two") || !strings.Contains(diff, "+TWO") {
		t.Fatalf("UnifiedDiff output missing expected +/- lines:\n%s", diff)
	}
}

func TestUnifiedDiffOfIdenticalContentIsEmpty(t *testing.T) {
	lines := Lines("same\ncontent\n")
	diff, err := UnifiedDiff("notes.txt", lines, lines)
	if err != nil {
		t.Fatalf("UnifiedDiff: %v", err)
	}
	if diff != "" {
		t.Fatalf("UnifiedDiff(identical) = %q, want empty", diff)
	}
}

// TestBackupPathFormat is P3's shape: a backup sibling named
// <path>.backup.<millis>, and WriteBackup produces byte-identical content.
func TestBackupPathFormat(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "notes.txt")
	content := []byte("original content\n")

	backupPath, err := WriteBackup(target, content)
	if err != nil {
		t.Fatalf("WriteBackup: %v", err)
	}

	base := filepath.Base(backupPath)
	wantPrefix := filepath.Base(target) + ".backup."
	if !strings.HasPrefix(base, wantPrefix) {
		t.Fatalf("backup name %q missing prefix %q", base, wantPrefix)
	}

	got, err := os.ReadFile(backupPath)
	if err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("backup content = %q, want %q", got, content)
	}
}

func TestDefaultLinterNeverRejects(t *testing.T) {
	if err := DefaultLinter.Lint("anything.txt", []string{"a\n"}); err != nil {
		t.Fatalf("DefaultLinter.Lint() = %v, want nil", err)
	}
}
