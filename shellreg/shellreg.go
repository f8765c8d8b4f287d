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

// Package shellreg persists the set of named shells (C4) as a single JSON
// file, read-modify-written whole, the same discipline the teacher's
// config.Context uses for credentials.json.
package shellreg

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	uuid "github.com/odeke-em/go-uuid"

	"github.com/wukunhuan/gds/gerrors"
	"github.com/wukunhuan/gds/model"
)

// Registry owns shells.json. Concurrent shell commands from the same user
// are assumed serial (§4.3); the mutex only protects this process's own
// goroutines, not cross-process access.
type Registry struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Registry {
	return &Registry{path: path}
}

func (r *Registry) load() (*model.ShellsFile, error) {
	data, err := ioutil.ReadFile(r.path)
	if os.IsNotExist(err) {
		return &model.ShellsFile{Shells: map[string]*model.ShellRecord{}}, nil
	}
	if err != nil {
		return nil, gerrors.StagingFailure(fmt.Errorf("shellreg: read %s: %w", r.path, err))
	}
	var sf model.ShellsFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, gerrors.StagingFailure(fmt.Errorf("shellreg: parse %s: %w", r.path, err))
	}
	if sf.Shells == nil {
		sf.Shells = map[string]*model.ShellRecord{}
	}
	return &sf, nil
}

func (r *Registry) save(sf *model.ShellsFile) error {
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return gerrors.StagingFailure(fmt.Errorf("shellreg: marshal: %w", err))
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return gerrors.StagingFailure(fmt.Errorf("shellreg: mkdir: %w", err))
	}
	tmp := r.path + ".tmp"
	if err := ioutil.WriteFile(tmp, data, 0644); err != nil {
		return gerrors.StagingFailure(fmt.Errorf("shellreg: write %s: %w", tmp, err))
	}
	return os.Rename(tmp, r.path)
}

// newShellId allocates a 16-hex shell id (§3 "Shell Record") from the
// first 16 hex digits of a freshly generated UUID.
func newShellId() string {
	raw := strings.ReplaceAll(uuid.New(), "-", "")
	if len(raw) > 16 {
		raw = raw[:16]
	}
	return raw
}

// Create allocates a new shell rooted at ~, defaulting it active if no
// shell is currently active (§4.3).
func (r *Registry) Create(displayName string) (*model.ShellRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sf, err := r.load()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rec := &model.ShellRecord{
		Id:                 newShellId(),
		DisplayName:        displayName,
		CurrentVirtualPath: "~",
		CreatedAt:          now,
		LastAccessedAt:     now,
	}
	sf.Shells[rec.Id] = rec
	if sf.ActiveShell == "" {
		sf.ActiveShell = rec.Id
	}

	if err := r.save(sf); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns every shell record.
func (r *Registry) List() ([]*model.ShellRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sf, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]*model.ShellRecord, 0, len(sf.Shells))
	for _, rec := range sf.Shells {
		out = append(out, rec)
	}
	return out, nil
}

// Active returns the currently active shell, or nil if none is active.
func (r *Registry) Active() (*model.ShellRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sf, err := r.load()
	if err != nil {
		return nil, err
	}
	if sf.ActiveShell == "" {
		return nil, nil
	}
	return sf.Shells[sf.ActiveShell], nil
}

// Checkout switches the active shell.
func (r *Registry) Checkout(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sf, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := sf.Shells[id]; !ok {
		return gerrors.PathNotFound(fmt.Errorf("shellreg: no such shell %q", id))
	}
	sf.ActiveShell = id
	return r.save(sf)
}

// Terminate removes a shell record; if it was active, no shell remains
// active (the invariant "exactly one active shell or none" permits "none").
func (r *Registry) Terminate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sf, err := r.load()
	if err != nil {
		return err
	}
	delete(sf.Shells, id)
	if sf.ActiveShell == id {
		sf.ActiveShell = ""
	}
	return r.save(sf)
}

// Update commits a (current_virtual_path, current_folder_id) pair produced
// by a successful `cd` — both or neither, per the invariant in §3 — and
// bumps last_accessed_at, which must be monotonically non-decreasing.
func (r *Registry) Update(id, virtualPath, folderId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sf, err := r.load()
	if err != nil {
		return err
	}
	rec, ok := sf.Shells[id]
	if !ok {
		return gerrors.PathNotFound(fmt.Errorf("shellreg: no such shell %q", id))
	}

	now := time.Now()
	if now.Before(rec.LastAccessedAt) {
		now = rec.LastAccessedAt
	}
	rec.CurrentVirtualPath = virtualPath
	rec.CurrentFolderId = folderId
	rec.LastAccessedAt = now

	return r.save(sf)
}

// UpdateVenv records the shell's active virtual environment name (C12),
// writing back through the same whole-file discipline.
func (r *Registry) UpdateVenv(id, activeEnv string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sf, err := r.load()
	if err != nil {
		return err
	}
	rec, ok := sf.Shells[id]
	if !ok {
		return gerrors.PathNotFound(fmt.Errorf("shellreg: no such shell %q", id))
	}
	rec.ActiveEnv = activeEnv
	return r.save(sf)
}
