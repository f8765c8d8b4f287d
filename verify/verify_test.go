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

package verify

import (
	"context"
	"io"
	"testing"
	"time"

	gdslog "github.com/odeke-em/log"

	"github.com/wukunhuan/gds/listing"
	"github.com/wukunhuan/gds/model"
)

type fakeAPI struct {
	children map[string][]*model.ListingEntry
}

func (f *fakeAPI) ListChildren(_ context.Context, folderId string, _ int) ([]*model.ListingEntry, error) {
	return f.children[folderId], nil
}
func (f *fakeAPI) GetMedia(context.Context, string) (io.ReadCloser, error)       { return nil, nil }
func (f *fakeAPI) Delete(context.Context, string) error                         { return nil }
func (f *fakeAPI) Get(context.Context, string) (*model.ListingEntry, error)      { return nil, nil }
func (f *fakeAPI) Parents(context.Context, string) ([]string, error)            { return nil, nil }

func testLog() *gdslog.Logger {
	return gdslog.New(nil, io.Discard, io.Discard)
}

func TestVerifyNamesAllFoundSucceedsWithoutRetry(t *testing.T) {
	api := &fakeAPI{children: map[string][]*model.ListingEntry{
		"folder": {
			{Name: "a.txt", Id: "1", Kind: model.KindFile},
			{Name: "b.txt", Id: "2", Kind: model.KindFile},
		},
	}}
	e := New(listing.New(api), testLog())

	report, err := e.VerifyNames(context.Background(), "folder", []string{"a.txt", "b.txt"})
	if err != nil {
		t.Fatalf("VerifyNames: %v", err)
	}
	if !report.Success() || len(report.Found) != 2 || len(report.Missing) != 0 {
		t.Fatalf("VerifyNames report = %+v, want both names found", report)
	}
}

func TestVerifyNamesMissingNameFailsOnContextCancellation(t *testing.T) {
	api := &fakeAPI{children: map[string][]*model.ListingEntry{"folder": {}}}
	e := New(listing.New(api), testLog())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	report, err := e.VerifyNames(ctx, "folder", []string{"never-lands.txt"})
	if err == nil {
		t.Fatal("VerifyNames with a name that never appears succeeded, want an error")
	}
	if report != nil && report.Success() {
		t.Fatalf("VerifyNames report = %+v, want Missing to include never-lands.txt", report)
	}
}
