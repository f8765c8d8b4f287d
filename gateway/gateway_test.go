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

package gateway

import (
	"testing"
	"time"

	drive "google.golang.org/api/drive/v3"

	"github.com/wukunhuan/gds/model"
)

// Gateway's network-facing methods all need a live *drive.Service, so only
// the pure classify/toEntry helpers are unit-tested here; the rest is
// exercised indirectly through the fakes the other packages' tests define
// against the gateway.DriveAPI interface.

func TestClassifyMapsMimeTypesToKinds(t *testing.T) {
	cases := []struct {
		mimeType string
		want     model.Kind
	}{
		{model.DriveFolderMimeType, model.KindFolder},
		{"application/vnd.google-apps.document", model.KindDoc},
		{"application/vnd.google-apps.spreadsheet", model.KindSheet},
		{"application/vnd.google-apps.presentation", model.KindSlide},
		{"application/vnd.google.colaboratory", model.KindNotebook},
		{"text/plain", model.KindFile},
		{"", model.KindFile},
	}
	for _, c := range cases {
		if got := classify(c.mimeType); got != c.want {
			t.Errorf("classify(%q) = %v, want %v", c.mimeType, got, c.want)
		}
	}
}

func TestToEntryCopiesFieldsAndParsesModifiedTime(t *testing.T) {
	f := &drive.File{
		Name:         "notes.txt",
		Id:           "file-1",
		MimeType:     "text/plain",
		Size:         1234,
		ModifiedTime: "2024-03-05T10:00:00Z",
	}
	entry := toEntry(f)

	if entry.Name != "notes.txt" || entry.Id != "file-1" || entry.Kind != model.KindFile || entry.Size != 1234 {
		t.Fatalf("toEntry = %+v, want fields copied from the drive.File", entry)
	}
	want := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	if !entry.ModifiedTime.Equal(want) {
		t.Fatalf("toEntry.ModifiedTime = %v, want %v", entry.ModifiedTime, want)
	}
	if entry.WebUrl == "" {
		t.Fatal("toEntry.WebUrl is empty, want a weburl.Of(...) result")
	}
}

func TestToEntryToleratesUnparseableModifiedTime(t *testing.T) {
	f := &drive.File{Name: "x", Id: "x1", MimeType: "text/plain", ModifiedTime: "not-a-time"}
	entry := toEntry(f)
	if !entry.ModifiedTime.IsZero() {
		t.Fatalf("toEntry.ModifiedTime = %v, want the zero value when unparseable", entry.ModifiedTime)
	}
}

func TestToEntryFolderGetsFolderKind(t *testing.T) {
	f := &drive.File{Name: "docs", Id: "folder-1", MimeType: model.DriveFolderMimeType}
	entry := toEntry(f)
	if entry.Kind != model.KindFolder {
		t.Fatalf("toEntry(folder).Kind = %v, want KindFolder", entry.Kind)
	}
}
