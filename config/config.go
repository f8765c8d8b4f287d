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

// Package config holds the OAuth context and the mirror/runtime
// configuration (§6 "Configuration options") that every GDS component reads.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path"

	homedir "github.com/mitchellh/go-homedir"
)

var (
	ErrNoDriveContext = errors.New("no drive context found; run `gds init`")
)

const (
	GDSDirSuffix = ".gds"
	O_RWForAll   = 0666
)

// Context is the OAuth client context, adapted from the teacher's
// config.Context: same shape, same whole-file JSON persistence discipline.
type Context struct {
	ClientId     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
	AbsPath      string `json:"-"`
}

func (c *Context) AbsPathOf(fileOrDirPath string) string {
	return path.Join(c.AbsPath, fileOrDirPath)
}

func (c *Context) Read() error {
	data, err := ioutil.ReadFile(credentialsPath(c.AbsPath))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

func (c *Context) Write() error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(credentialsPath(c.AbsPath), data, 0600)
}

func gdsPath(absPath string) string {
	return path.Join(absPath, GDSDirSuffix)
}

func credentialsPath(absPath string) string {
	return path.Join(gdsPath(absPath), "credentials.json")
}

// Discover walks up from currentAbsPath looking for a .gds directory,
// mirroring the teacher's Discover for .gd.
func Discover(currentAbsPath string) (*Context, error) {
	p := currentAbsPath
	found := false
	for {
		info, err := os.Stat(gdsPath(p))
		if err == nil && info.IsDir() {
			found = true
			break
		}
		newPath := path.Join(p, "..")
		if p == newPath {
			break
		}
		p = newPath
	}

	if !found {
		return nil, ErrNoDriveContext
	}

	context := &Context{AbsPath: p}
	if err := context.Read(); err != nil {
		return nil, err
	}
	return context, nil
}

func Initialize(absPath string) (*Context, error) {
	pathGDS := gdsPath(absPath)
	if err := os.MkdirAll(pathGDS, 0755); err != nil {
		return nil, err
	}
	c := &Context{AbsPath: absPath}
	if err := c.Write(); err != nil {
		return nil, err
	}
	return c, nil
}

// MirrorConfig holds the options the orchestrator is configured with (§6
// "Configuration options"), layered on top of a Context per §9's redesign
// note ("configuration value passed as an explicit context argument").
type MirrorConfig struct {
	// RemoteRootFolderId is the Drive folder id serving as virtual ~.
	RemoteRootFolderId string

	// MirrorBasePath is the local directory continuously synced by the
	// vendor agent; LOCAL_EQUIVALENT, DRIVE_EQUIVALENT, REMOTE_ROOT and
	// REMOTE_ENV all live under it.
	MirrorBasePath string

	// DataDir is GOOGLE_DRIVE_DATA: shells.json, the download cache, and
	// captured sentinel JSONs.
	DataDir string

	// PerFileSyncTimeout and PerDirSyncTimeout bound the Sync Waiter (§4.5).
	PerFileSyncTimeout int // seconds, baseline ~60
	PerDirSyncTimeout  int // seconds, baseline ~60

	// MaxListDepth bounds `ls -R` (§4.2, default 5).
	MaxListDepth int

	// Debug toggles GDS_DEBUG capture.
	Debug bool
}

const (
	DefaultPerFileSyncTimeout = 60
	DefaultPerDirSyncTimeout  = 60
	DefaultMaxListDepth       = 5
	BigFileSize               = int64(1) << 30 // 1 GiB, §4.7 size split boundary (B1)
)

// NewMirrorConfig fills defaults and resolves MirrorBasePath/DataDir via
// the user's home directory when left blank, the way the teacher's gd
// discovers a working tree relative to the user's cwd.
func NewMirrorConfig(remoteRootFolderId, mirrorBasePath, dataDir string) (*MirrorConfig, error) {
	if mirrorBasePath == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("config: resolving home dir: %w", err)
		}
		mirrorBasePath = path.Join(home, "GoogleDriveMirror")
	}
	if dataDir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("config: resolving home dir: %w", err)
		}
		dataDir = path.Join(home, "GOOGLE_DRIVE_DATA")
	}

	return &MirrorConfig{
		RemoteRootFolderId: remoteRootFolderId,
		MirrorBasePath:     mirrorBasePath,
		DataDir:            dataDir,
		PerFileSyncTimeout: DefaultPerFileSyncTimeout,
		PerDirSyncTimeout:  DefaultPerDirSyncTimeout,
		MaxListDepth:       DefaultMaxListDepth,
		Debug:              os.Getenv("GDS_DEBUG") != "",
	}, nil
}

// Mirror subtree accessors (§6 "Mirror layout").
func (m *MirrorConfig) LocalEquivalent() string { return path.Join(m.MirrorBasePath, "LOCAL_EQUIVALENT") }
func (m *MirrorConfig) DriveEquivalent() string { return path.Join(m.MirrorBasePath, "DRIVE_EQUIVALENT") }
func (m *MirrorConfig) RemoteRoot() string      { return path.Join(m.MirrorBasePath, "REMOTE_ROOT") }
func (m *MirrorConfig) RemoteEnvVenv() string   { return path.Join(m.MirrorBasePath, "REMOTE_ENV", "venv") }
func (m *MirrorConfig) RemoteRootTmp() string   { return path.Join(m.RemoteRoot(), "tmp") }

// Local-side persistent state (§6 "Persistent state layout").
func (m *MirrorConfig) ShellsFilePath() string   { return path.Join(m.DataDir, "shells.json") }
func (m *MirrorConfig) CacheDir() string         { return path.Join(m.DataDir, "cache") }
func (m *MirrorConfig) RemoteFilesDir() string   { return path.Join(m.DataDir, "remote_files") }
func (m *MirrorConfig) VenvStatesPath() string   { return path.Join(m.RemoteEnvVenv(), "venv_states.json") }
