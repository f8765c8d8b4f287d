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

// Package model holds the data types shared across every GDS component, so
// that gateway, resolver, listing, upload and the rest depend on one vocabulary
// instead of redeclaring File/Shell/Envelope shapes against each other.
package model

import "time"

// Kind classifies a ListingEntry by what Drive's mimeType implies it is.
type Kind int

const (
	KindFile Kind = iota
	KindFolder
	KindDoc
	KindSheet
	KindSlide
	KindNotebook
)

const DriveFolderMimeType = "application/vnd.google-apps.folder"

// ListingEntry is one row produced by the Listing Engine (C3).
type ListingEntry struct {
	Name         string
	Id           string
	Kind         Kind
	MimeType     string
	Size         int64
	ModifiedTime time.Time
	WebUrl       string
}

// VenvShellState is the per-shell activation record stored under the
// `shells` key of venv_states.json, keyed by shell id (§3, §4.11).
type VenvShellState struct {
	ActiveEnv   string    `json:"active_env,omitempty"`
	EnvPath     string    `json:"env_path,omitempty"`
	ActivatedAt time.Time `json:"activated_at,omitempty"`
}

type VenvEnvironment struct {
	CreatedAt   time.Time         `json:"created_at"`
	LastUpdated time.Time         `json:"last_updated"`
	Packages    map[string]string `json:"packages"`
}

// VenvStates is the whole-file shape of venv_states.json.
type VenvStates struct {
	Shells       map[string]*VenvShellState `json:"shells,omitempty"`
	Environments map[string]*VenvEnvironment `json:"environments"`
}

// ShellRecord is a persistent session (§3 "Shell Record").
type ShellRecord struct {
	Id                 string    `json:"id"`
	DisplayName        string    `json:"display_name"`
	CurrentVirtualPath string    `json:"current_virtual_path"`
	CurrentFolderId    string    `json:"current_folder_id"`
	CreatedAt          time.Time `json:"created_at"`
	LastAccessedAt     time.Time `json:"last_accessed_at"`
	ActiveEnv          string    `json:"active_env,omitempty"`
}

// ShellsFile is the whole-file shape of shells.json.
type ShellsFile struct {
	Shells       map[string]*ShellRecord `json:"shells"`
	ActiveShell  string                  `json:"active_shell,omitempty"`
}

// StagedFile is created when a local file is placed into the mirror's
// LOCAL_EQUIVALENT (§3 "Staged File").
type StagedFile struct {
	OriginPath       string
	MirrorName       string
	OriginalName     string
	TargetVirtualPath string
	Renamed          bool
}

// CommandEnvelope records one remote execution (§3 "Command Envelope").
type CommandEnvelope struct {
	Cmd            string
	Argv           []string
	Timestamp      time.Time
	CmdHash        string
	ResultFilename string
	WorkingDir     string
}

// ReplacementKind distinguishes the three spec element shapes (§3
// "Replacement Spec").
type ReplacementKind int

const (
	ReplaceRange ReplacementKind = iota
	InsertAfter
	TextSubstitution
)

// ReplacementOp is one element of a parsed replacement spec.
type ReplacementOp struct {
	Kind       ReplacementKind
	StartLine  int // RangeReplace: inclusive start; InsertAfter: line to insert after (0 = before first line)
	EndLine    int // RangeReplace only: inclusive end
	NewContent string
	OldText    string // TextSubstitution only
}

// CacheEntry is a Download Cache record (§3 "Cache Entry", §4.9).
type CacheEntry struct {
	RemotePath   string
	ContentHash  string
	ModTime      time.Time
	LocalBlobPath string
}

// SentinelResult is the JSON schema written by a generated remote script
// (§6 "Sentinel result JSON schema"). Missing fields default per spec.
type SentinelResult struct {
	Cmd        string   `json:"cmd"`
	Args       []string `json:"args"`
	WorkingDir string   `json:"working_dir"`
	Timestamp  string   `json:"timestamp"`
	ExitCode   int      `json:"exit_code"`
	Stdout     string   `json:"stdout"`
	Stderr     string   `json:"stderr"`
	RawOutput  string   `json:"raw_output,omitempty"`
	RawError   string   `json:"raw_error,omitempty"`
	DebugInfo  string   `json:"debug_info,omitempty"`
}

// DefaultSentinel returns a SentinelResult with the tolerant defaults the
// reader must apply when fields are missing (exit_code=-1, blank std*).
func DefaultSentinel() SentinelResult {
	return SentinelResult{ExitCode: -1}
}
