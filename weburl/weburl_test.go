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

package weburl

import (
	"testing"

	"github.com/wukunhuan/gds/model"
)

func TestOfDerivesPerKind(t *testing.T) {
	cases := []struct {
		kind model.Kind
		want string
	}{
		{model.KindFolder, "https://drive.google.com/drive/folders/abc123"},
		{model.KindDoc, "https://docs.google.com/document/d/abc123/edit"},
		{model.KindSheet, "https://docs.google.com/spreadsheets/d/abc123/edit"},
		{model.KindSlide, "https://docs.google.com/presentation/d/abc123/edit"},
		{model.KindNotebook, "https://colab.research.google.com/drive/abc123"},
		{model.KindFile, "https://drive.google.com/file/d/abc123/view"},
	}
	for _, c := range cases {
		if got := Of(c.kind, "abc123"); got != c.want {
			t.Errorf("Of(%v, abc123) = %q, want %q", c.kind, got, c.want)
		}
	}
}

func TestOfUnknownKindFallsBackToFileView(t *testing.T) {
	const bogus model.Kind = 99
	got := Of(bogus, "xyz")
	want := "https://drive.google.com/file/d/xyz/view"
	if got != want {
		t.Fatalf("Of(bogus, xyz) = %q, want %q", got, want)
	}
}
