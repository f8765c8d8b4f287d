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

// Package weburl derives the web_url field of a Listing Entry from its kind
// and id (§4.2), the successor to the teacher's File.Url in src/url.go.
package weburl

import "github.com/wukunhuan/gds/model"

const (
	folderBase   = "https://drive.google.com/drive/folders/"
	docBase      = "https://docs.google.com/document/d/"
	sheetBase    = "https://docs.google.com/spreadsheets/d/"
	slideBase    = "https://docs.google.com/presentation/d/"
	colabBase    = "https://colab.research.google.com/drive/"
	fileViewBase = "https://drive.google.com/file/d/"
)

// Of returns the web_url for an entry of the given kind and id.
func Of(kind model.Kind, id string) string {
	switch kind {
	case model.KindFolder:
		return folderBase + id
	case model.KindDoc:
		return docBase + id + "/edit"
	case model.KindSheet:
		return sheetBase + id + "/edit"
	case model.KindSlide:
		return slideBase + id + "/edit"
	case model.KindNotebook:
		return colabBase + id
	default:
		return fileViewBase + id + "/view"
	}
}
