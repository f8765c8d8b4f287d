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
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	gdslog "github.com/odeke-em/log"

	"github.com/wukunhuan/gds/executor"
	"github.com/wukunhuan/gds/gateway"
	"github.com/wukunhuan/gds/model"
)

// fakeAPI satisfies gateway.DriveAPI but is never actually called in these
// tests: fakePresenter always answers with "direct_feedback", which short
// circuits Executor.Run before it reaches the sentinel-polling branch that
// would otherwise use the Drive API.
type fakeAPI struct{}

func (fakeAPI) ListChildren(context.Context, string, int) ([]*model.ListingEntry, error) {
	return nil, nil
}
func (fakeAPI) GetMedia(context.Context, string) (io.ReadCloser, error) { return nil, nil }
func (fakeAPI) Delete(context.Context, string) error                   { return nil }
func (fakeAPI) Get(context.Context, string) (*model.ListingEntry, error) {
	return nil, nil
}
func (fakeAPI) Parents(context.Context, string) ([]string, error) { return nil, nil }

var _ gateway.DriveAPI = fakeAPI{}

// fakePresenter answers each Present call with the next queued outcome,
// standing in for a human operator or GUI dialog in these tests.
type fakePresenter struct {
	outcomes []executor.Outcome
	calls    int
}

func (p *fakePresenter) Present(script, displayCmd, debugInfo string) (executor.Outcome, error) {
	o := p.outcomes[p.calls]
	p.calls++
	return o, nil
}

func testLog() *gdslog.Logger { return gdslog.New(nil, io.Discard, io.Discard) }

func directFeedback(payload string) executor.Outcome {
	return executor.Outcome{Action: "direct_feedback", DirectFeedback: payload}
}

func TestStoreReadParsesWholeFileState(t *testing.T) {
	want := &model.VenvStates{
		Shells: map[string]*model.VenvShellState{
			"shell-1": {ActiveEnv: "env1", EnvPath: "/remote/envs/env1"},
		},
		Environments: map[string]*model.VenvEnvironment{
			"env1": {Packages: map[string]string{"requests": "2.31.0"}},
		},
	}
	payload, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}

	presenter := &fakePresenter{outcomes: []executor.Outcome{directFeedback(string(payload))}}
	exec := executor.New(fakeAPI{}, presenter, testLog())
	store := New(exec, "/remote/root", "/remote/root/REMOTE_ENV/venv/venv_states.json")

	got, err := store.Read(context.Background(), "/remote/root")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Shells["shell-1"].ActiveEnv != "env1" {
		t.Fatalf("Read().Shells = %+v, want shell-1 active in env1", got.Shells)
	}
	if got.Environments["env1"].Packages["requests"] != "2.31.0" {
		t.Fatalf("Read().Environments = %+v, want requests 2.31.0", got.Environments)
	}
}

func TestStoreReadMissingFileReturnsEmptyStates(t *testing.T) {
	presenter := &fakePresenter{outcomes: []executor.Outcome{directFeedback("")}}
	exec := executor.New(fakeAPI{}, presenter, testLog())
	store := New(exec, "/remote/root", "/remote/root/REMOTE_ENV/venv/venv_states.json")

	got, err := store.Read(context.Background(), "/remote/root")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Shells == nil || got.Environments == nil {
		t.Fatalf("Read(missing file) = %+v, want non-nil empty maps", got)
	}
	if len(got.Shells) != 0 || len(got.Environments) != 0 {
		t.Fatalf("Read(missing file) = %+v, want both maps empty", got)
	}
}

func TestStoreActivateRecordsShellAndCreatesEnvironmentIfNew(t *testing.T) {
	empty := &model.VenvStates{Shells: map[string]*model.VenvShellState{}, Environments: map[string]*model.VenvEnvironment{}}
	emptyPayload, _ := json.Marshal(empty)

	presenter := &fakePresenter{outcomes: []executor.Outcome{
		{Action: "direct_feedback", DirectFeedback: ""}, // ActivateScript's python3 -m venv
		directFeedback(string(emptyPayload)),            // the Read inside Activate
		{Action: "direct_feedback", DirectFeedback: ""}, // the Write
	}}
	exec := executor.New(fakeAPI{}, presenter, testLog())
	store := New(exec, "/remote/root", "/remote/root/REMOTE_ENV/venv/venv_states.json")

	err := store.Activate(context.Background(), "/remote/root", "shell-1", "myenv", "/remote/envs/myenv")
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if presenter.calls != 3 {
		t.Fatalf("Present called %d times, want 3 (create script, Read, Write)", presenter.calls)
	}
}

func TestStoreActivateDeactivateSkipsCreateScript(t *testing.T) {
	withEnv := &model.VenvStates{
		Shells:       map[string]*model.VenvShellState{"shell-1": {ActiveEnv: "myenv"}},
		Environments: map[string]*model.VenvEnvironment{"myenv": {Packages: map[string]string{}}},
	}
	payload, _ := json.Marshal(withEnv)

	presenter := &fakePresenter{outcomes: []executor.Outcome{
		directFeedback(string(payload)),                 // the Read inside Activate
		{Action: "direct_feedback", DirectFeedback: ""}, // the Write
	}}
	exec := executor.New(fakeAPI{}, presenter, testLog())
	store := New(exec, "/remote/root", "/remote/root/REMOTE_ENV/venv/venv_states.json")

	if err := store.Activate(context.Background(), "/remote/root", "shell-1", "", ""); err != nil {
		t.Fatalf("Activate(deactivate): %v", err)
	}
	if presenter.calls != 2 {
		t.Fatalf("Present called %d times, want 2 (no create script on deactivate)", presenter.calls)
	}
}

func TestStoreCreateProvisionsEmptyEnvironment(t *testing.T) {
	empty := &model.VenvStates{Shells: map[string]*model.VenvShellState{}, Environments: map[string]*model.VenvEnvironment{}}
	emptyPayload, _ := json.Marshal(empty)

	presenter := &fakePresenter{outcomes: []executor.Outcome{
		{Action: "direct_feedback", DirectFeedback: ""}, // create script
		directFeedback(string(emptyPayload)),            // Read
		{Action: "direct_feedback", DirectFeedback: ""}, // Write
	}}
	exec := executor.New(fakeAPI{}, presenter, testLog())
	store := New(exec, "/remote/root", "/remote/root/REMOTE_ENV/venv/venv_states.json")

	if err := store.Create(context.Background(), "/remote/root", "newenv", "/remote/envs/newenv"); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestStoreDeleteRemovesEnvironmentAndClearsActivatedShells(t *testing.T) {
	withEnv := &model.VenvStates{
		Shells:       map[string]*model.VenvShellState{"shell-1": {ActiveEnv: "myenv", EnvPath: "/remote/envs/myenv"}},
		Environments: map[string]*model.VenvEnvironment{"myenv": {Packages: map[string]string{}}},
	}
	payload, _ := json.Marshal(withEnv)

	presenter := &fakePresenter{outcomes: []executor.Outcome{
		{Action: "direct_feedback", DirectFeedback: ""}, // rm -rf
		directFeedback(string(payload)),                 // Read
		{Action: "direct_feedback", DirectFeedback: ""}, // Write
	}}
	exec := executor.New(fakeAPI{}, presenter, testLog())
	store := New(exec, "/remote/root", "/remote/root/REMOTE_ENV/venv/venv_states.json")

	if err := store.Delete(context.Background(), "/remote/root", "myenv", "/remote/envs/myenv"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestStoreListReturnsEnvironmentNames(t *testing.T) {
	withEnvs := &model.VenvStates{
		Shells: map[string]*model.VenvShellState{},
		Environments: map[string]*model.VenvEnvironment{
			"a": {Packages: map[string]string{}},
			"b": {Packages: map[string]string{}},
		},
	}
	payload, _ := json.Marshal(withEnvs)

	presenter := &fakePresenter{outcomes: []executor.Outcome{directFeedback(string(payload))}}
	exec := executor.New(fakeAPI{}, presenter, testLog())
	store := New(exec, "/remote/root", "/remote/root/REMOTE_ENV/venv/venv_states.json")

	names, err := store.List(context.Background(), "/remote/root")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("List = %v, want 2 entries", names)
	}
}

func TestStoreRecordInstallsDiffsAddedAndUpgraded(t *testing.T) {
	existing := &model.VenvStates{
		Shells: map[string]*model.VenvShellState{},
		Environments: map[string]*model.VenvEnvironment{
			"myenv": {CreatedAt: time.Now(), Packages: map[string]string{"requests": "2.30.0", "six": "1.16.0"}},
		},
	}
	payload, _ := json.Marshal(existing)

	presenter := &fakePresenter{outcomes: []executor.Outcome{
		directFeedback(string(payload)),
		{Action: "direct_feedback", DirectFeedback: ""},
	}}
	exec := executor.New(fakeAPI{}, presenter, testLog())
	store := New(exec, "/remote/root", "/remote/root/REMOTE_ENV/venv/venv_states.json")

	added, upgraded, err := store.RecordInstalls(context.Background(), "/remote/root", "myenv", map[string]string{
		"requests": "2.31.0", // upgraded
		"six":      "1.16.0", // unchanged
		"numpy":    "1.26.0", // added
	})
	if err != nil {
		t.Fatalf("RecordInstalls: %v", err)
	}
	if added["numpy"] != "1.26.0" || len(added) != 1 {
		t.Fatalf("added = %+v, want only numpy", added)
	}
	if upgraded["requests"] != "2.31.0" || len(upgraded) != 1 {
		t.Fatalf("upgraded = %+v, want only requests", upgraded)
	}
}
