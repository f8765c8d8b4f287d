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
	"context"
	"io"
	"strings"
	"testing"
	"time"

	gdslog "github.com/odeke-em/log"

	"github.com/wukunhuan/gds/model"
)

// fakeSentinelAPI answers ListChildren/GetMedia for a single folder id,
// recording which folder id it was actually asked to list so a test can
// confirm Run resolved a blank tmpFolderId before polling.
type fakeSentinelAPI struct {
	wantFolderId string
	filename     string
	body         string
	askedWrongId bool
}

func (f *fakeSentinelAPI) ListChildren(_ context.Context, folderId string, _ int) ([]*model.ListingEntry, error) {
	if folderId != f.wantFolderId {
		f.askedWrongId = true
		return nil, nil
	}
	return []*model.ListingEntry{{Name: f.filename, Id: "result-id", Kind: model.KindFile}}, nil
}
func (f *fakeSentinelAPI) GetMedia(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.body)), nil
}
func (*fakeSentinelAPI) Delete(context.Context, string) error { return nil }
func (*fakeSentinelAPI) Get(context.Context, string) (*model.ListingEntry, error) {
	return nil, nil
}
func (*fakeSentinelAPI) Parents(context.Context, string) ([]string, error) { return nil, nil }

type successPresenter struct{}

func (successPresenter) Present(string, string, string) (Outcome, error) {
	return Outcome{Action: "success"}, nil
}

// TestRunResolvesBlankTmpFolderIdLazilyBeforePolling drives Run with no
// sentinel ever appearing (the fake's folder never contains a match for the
// generated result filename), so pollSentinel falls through to its
// ctx.Done() branch when the short context expires, before the poll's first
// one-second tick — this test cares only that ListChildren was asked about
// the *resolved* folder id, not about a successful sentinel read.
func TestRunResolvesBlankTmpFolderIdLazilyBeforePolling(t *testing.T) {
	api := &fakeSentinelAPI{wantFolderId: "resolved-tmp-id"}
	exec := New(api, successPresenter{}, gdslog.New(nil, io.Discard, io.Discard))

	resolverCalled := false
	exec.SetTmpFolderResolver(func(context.Context) (string, error) {
		resolverCalled = true
		return "resolved-tmp-id", nil
	})

	// Long enough for the bash -n syntax check (which runs under ctx) to
	// finish, short enough to expire during the poll.
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := exec.Run(ctx, "bash", []string{"-c", "echo hi"}, "/remote", "/remote", "", NewDebugBuffer())
	if !resolverCalled {
		t.Fatalf("Run did not call the installed tmp-folder resolver for a blank tmpFolderId")
	}
	if api.askedWrongId {
		t.Fatalf("Run polled ListChildren with an unresolved (blank) folder id instead of the resolved one")
	}
	if err == nil {
		t.Fatalf("Run with a context that expires during polling = nil error, want a SyncTimeout")
	}
}

func TestRunSkipsResolverWhenTmpFolderIdAlreadySet(t *testing.T) {
	api := &fakeSentinelAPI{wantFolderId: "explicit-id"}
	exec := New(api, successPresenter{}, gdslog.New(nil, io.Discard, io.Discard))

	exec.SetTmpFolderResolver(func(context.Context) (string, error) {
		t.Fatalf("resolver should not be called when tmpFolderId is already set")
		return "", nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if _, err := exec.Run(ctx, "bash", []string{"-c", "echo hi"}, "/remote", "/remote", "explicit-id", NewDebugBuffer()); err == nil {
		t.Fatalf("Run with a context that expires during polling = nil error, want a SyncTimeout")
	}
	if api.askedWrongId {
		t.Fatalf("Run polled ListChildren with the wrong folder id")
	}
}
