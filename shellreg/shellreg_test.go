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

package shellreg

import (
	"path/filepath"
	"testing"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "shells.json"))
}

func TestCreateFirstShellBecomesActive(t *testing.T) {
	r := testRegistry(t)
	rec, err := r.Create("default")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.CurrentVirtualPath != "~" {
		t.Fatalf("new shell CurrentVirtualPath = %q, want %q", rec.CurrentVirtualPath, "~")
	}

	active, err := r.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active == nil || active.Id != rec.Id {
		t.Fatalf("Active() = %+v, want the just-created shell %+v", active, rec)
	}
}

func TestSecondShellDoesNotStealActive(t *testing.T) {
	r := testRegistry(t)
	first, err := r.Create("first")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.Create("second"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	active, err := r.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active.Id != first.Id {
		t.Fatalf("Active() = %q after a second Create, want the first shell %q", active.Id, first.Id)
	}
}

func TestCheckoutSwitchesActiveShell(t *testing.T) {
	r := testRegistry(t)
	first, _ := r.Create("first")
	second, _ := r.Create("second")
	_ = first

	if err := r.Checkout(second.Id); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	active, err := r.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active.Id != second.Id {
		t.Fatalf("Active() = %q after Checkout(%q), want %q", active.Id, second.Id, second.Id)
	}
}

func TestCheckoutUnknownShellFails(t *testing.T) {
	r := testRegistry(t)
	if err := r.Checkout("does-not-exist"); err == nil {
		t.Fatal("Checkout(unknown id) succeeded, want PathNotFound")
	}
}

func TestTerminateActiveShellLeavesNoneActive(t *testing.T) {
	r := testRegistry(t)
	rec, _ := r.Create("solo")

	if err := r.Terminate(rec.Id); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	active, err := r.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active != nil {
		t.Fatalf("Active() = %+v after terminating the only shell, want nil", active)
	}
}

func TestUpdateCommitsPathAndFolderTogether(t *testing.T) {
	r := testRegistry(t)
	rec, _ := r.Create("solo")

	if err := r.Update(rec.Id, "~/docs", "docsId"); err != nil {
		t.Fatalf("Update: %v", err)
	}

	shells, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(shells) != 1 {
		t.Fatalf("List() returned %d shells, want 1", len(shells))
	}
	got := shells[0]
	if got.CurrentVirtualPath != "~/docs" || got.CurrentFolderId != "docsId" {
		t.Fatalf("Update did not commit both fields: %+v", got)
	}
}

func TestUpdateUnknownShellFails(t *testing.T) {
	r := testRegistry(t)
	if err := r.Update("bogus", "~/x", "id"); err == nil {
		t.Fatal("Update(unknown id) succeeded, want PathNotFound")
	}
}

func TestUpdateVenvRecordsActiveEnv(t *testing.T) {
	r := testRegistry(t)
	rec, _ := r.Create("solo")

	if err := r.UpdateVenv(rec.Id, "myenv"); err != nil {
		t.Fatalf("UpdateVenv: %v", err)
	}
	shells, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if shells[0].ActiveEnv != "myenv" {
		t.Fatalf("ActiveEnv = %q, want %q", shells[0].ActiveEnv, "myenv")
	}
}

func TestRegistryPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shells.json")

	r1 := New(path)
	rec, err := r1.Create("persisted")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	r2 := New(path)
	active, err := r2.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active == nil || active.Id != rec.Id {
		t.Fatalf("a fresh Registry over the same path did not see the persisted shell: %+v", active)
	}
}
