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

package cache

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wukunhuan/gds/model"
)

// fakeAPI serves fixed content for GetMedia and counts how many times it was
// called, so tests can assert a warm cache short-circuits the gateway.
type fakeAPI struct {
	content     string
	mediaCalls  int
}

func (f *fakeAPI) ListChildren(context.Context, string, int) ([]*model.ListingEntry, error) {
	return nil, nil
}
func (f *fakeAPI) GetMedia(context.Context, string) (io.ReadCloser, error) {
	f.mediaCalls++
	return io.NopCloser(strings.NewReader(f.content)), nil
}
func (f *fakeAPI) Delete(context.Context, string) error { return nil }
func (f *fakeAPI) Get(context.Context, string) (*model.ListingEntry, error) { return nil, nil }
func (f *fakeAPI) Parents(context.Context, string) ([]string, error)       { return nil, nil }

func newTestCache(t *testing.T) (*Cache, *fakeAPI) {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenBoltStore(filepath.Join(dir, "index.bolt"))
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	api := &fakeAPI{content: "hello cache"}
	return New(store, api, filepath.Join(dir, "blobs")), api
}

func TestFetchDownloadsOnFirstMiss(t *testing.T) {
	c, api := newTestCache(t)
	live := &model.ListingEntry{Id: "f1", ModifiedTime: time.Unix(1000, 0)}

	blobPath, err := c.Fetch(context.Background(), "~/report.txt", live)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if api.mediaCalls != 1 {
		t.Fatalf("GetMedia called %d times, want 1", api.mediaCalls)
	}
	data, err := os.ReadFile(blobPath)
	if err != nil {
		t.Fatalf("reading blob: %v", err)
	}
	if string(data) != "hello cache" {
		t.Fatalf("blob content = %q, want %q", data, "hello cache")
	}
}

func TestFetchIsCachedOnSecondCallWithSameModTime(t *testing.T) {
	c, api := newTestCache(t)
	live := &model.ListingEntry{Id: "f1", ModifiedTime: time.Unix(1000, 0)}

	if _, err := c.Fetch(context.Background(), "~/report.txt", live); err != nil {
		t.Fatalf("Fetch (first): %v", err)
	}
	if _, err := c.Fetch(context.Background(), "~/report.txt", live); err != nil {
		t.Fatalf("Fetch (second): %v", err)
	}
	if api.mediaCalls != 1 {
		t.Fatalf("GetMedia called %d times across two Fetches with an unchanged mtime, want 1", api.mediaCalls)
	}
}

func TestFetchRedownloadsWhenModTimeChanges(t *testing.T) {
	c, api := newTestCache(t)
	first := &model.ListingEntry{Id: "f1", ModifiedTime: time.Unix(1000, 0)}
	if _, err := c.Fetch(context.Background(), "~/report.txt", first); err != nil {
		t.Fatalf("Fetch (first): %v", err)
	}

	updated := &model.ListingEntry{Id: "f1", ModifiedTime: time.Unix(2000, 0)}
	if _, err := c.Fetch(context.Background(), "~/report.txt", updated); err != nil {
		t.Fatalf("Fetch (second): %v", err)
	}
	if api.mediaCalls != 2 {
		t.Fatalf("GetMedia called %d times across a changed mtime, want 2", api.mediaCalls)
	}
}

func TestInvalidateDeletedForcesRedownload(t *testing.T) {
	c, api := newTestCache(t)
	live := &model.ListingEntry{Id: "f1", ModifiedTime: time.Unix(1000, 0)}
	if _, err := c.Fetch(context.Background(), "~/report.txt", live); err != nil {
		t.Fatalf("Fetch (first): %v", err)
	}

	if err := c.InvalidateDeleted("~/report.txt"); err != nil {
		t.Fatalf("InvalidateDeleted: %v", err)
	}

	if _, err := c.Fetch(context.Background(), "~/report.txt", live); err != nil {
		t.Fatalf("Fetch (after invalidate): %v", err)
	}
	if api.mediaCalls != 2 {
		t.Fatalf("GetMedia called %d times after InvalidateDeleted, want a second download", api.mediaCalls)
	}
}

func TestBoltStorePutGetDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenBoltStore(filepath.Join(dir, "index.bolt"))
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	defer store.Close()

	entry := &model.CacheEntry{RemotePath: "~/a.txt", ContentHash: "abc123"}
	if err := store.Put("~/a.txt", entry); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, found, err := store.Get("~/a.txt")
	if err != nil || !found {
		t.Fatalf("Get = (%+v, %v, %v), want found", got, found, err)
	}
	if got.ContentHash != "abc123" {
		t.Fatalf("Get().ContentHash = %q, want %q", got.ContentHash, "abc123")
	}

	if err := store.Delete("~/a.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, found, err = store.Get("~/a.txt")
	if err != nil {
		t.Fatalf("Get after Delete: %v", err)
	}
	if found {
		t.Fatal("Get after Delete reported found=true")
	}
}
