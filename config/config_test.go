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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitializeWritesAndReadRoundTrips(t *testing.T) {
	dir := t.TempDir()

	c, err := Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	c.ClientId = "id-123"
	c.ClientSecret = "secret-456"
	c.RefreshToken = "refresh-789"
	if err := c.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}

	reread := &Context{AbsPath: dir}
	if err := reread.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if reread.ClientId != "id-123" || reread.ClientSecret != "secret-456" || reread.RefreshToken != "refresh-789" {
		t.Fatalf("Read() = %+v, want the written credentials back", reread)
	}
}

func TestDiscoverWalksUpToFindGDSDir(t *testing.T) {
	root := t.TempDir()
	if _, err := Initialize(root); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("mkdir nested: %v", err)
	}

	ctx, err := Discover(nested)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if ctx.AbsPath != root {
		t.Fatalf("Discover found AbsPath %q, want %q", ctx.AbsPath, root)
	}
}

func TestDiscoverWithNoGDSDirFails(t *testing.T) {
	dir := t.TempDir()
	if _, err := Discover(dir); err != ErrNoDriveContext {
		t.Fatalf("Discover(no .gds) err = %v, want ErrNoDriveContext", err)
	}
}

func TestNewMirrorConfigFillsDefaultsWhenGivenExplicitPaths(t *testing.T) {
	dir := t.TempDir()
	mirrorBase := filepath.Join(dir, "mirror")
	dataDir := filepath.Join(dir, "data")

	cfg, err := NewMirrorConfig("root-folder-id", mirrorBase, dataDir)
	if err != nil {
		t.Fatalf("NewMirrorConfig: %v", err)
	}
	if cfg.RemoteRootFolderId != "root-folder-id" {
		t.Fatalf("RemoteRootFolderId = %q, want root-folder-id", cfg.RemoteRootFolderId)
	}
	if cfg.PerFileSyncTimeout != DefaultPerFileSyncTimeout || cfg.PerDirSyncTimeout != DefaultPerDirSyncTimeout {
		t.Fatalf("sync timeouts = (%d, %d), want the package defaults", cfg.PerFileSyncTimeout, cfg.PerDirSyncTimeout)
	}
	if cfg.MaxListDepth != DefaultMaxListDepth {
		t.Fatalf("MaxListDepth = %d, want %d", cfg.MaxListDepth, DefaultMaxListDepth)
	}
}

func TestMirrorConfigSubtreeAccessorsNestUnderMirrorBasePath(t *testing.T) {
	cfg := &MirrorConfig{MirrorBasePath: "/mirror", DataDir: "/data"}

	cases := []struct {
		name string
		got  string
		want string
	}{
		{"LocalEquivalent", cfg.LocalEquivalent(), "/mirror/LOCAL_EQUIVALENT"},
		{"DriveEquivalent", cfg.DriveEquivalent(), "/mirror/DRIVE_EQUIVALENT"},
		{"RemoteRoot", cfg.RemoteRoot(), "/mirror/REMOTE_ROOT"},
		{"RemoteEnvVenv", cfg.RemoteEnvVenv(), "/mirror/REMOTE_ENV/venv"},
		{"RemoteRootTmp", cfg.RemoteRootTmp(), "/mirror/REMOTE_ROOT/tmp"},
		{"ShellsFilePath", cfg.ShellsFilePath(), "/data/shells.json"},
		{"CacheDir", cfg.CacheDir(), "/data/cache"},
		{"RemoteFilesDir", cfg.RemoteFilesDir(), "/data/remote_files"},
		{"VenvStatesPath", cfg.VenvStatesPath(), "/mirror/REMOTE_ENV/venv/venv_states.json"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
}

func TestBigFileSizeIsOneGibibyte(t *testing.T) {
	if BigFileSize != 1<<30 {
		t.Fatalf("BigFileSize = %d, want 1 GiB (%d)", BigFileSize, int64(1)<<30)
	}
}
