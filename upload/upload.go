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

// Package upload is the Upload Orchestrator (C8): it drives a single batch
// of local files through the state machine described in §4.7 — Init,
// SizeSplit, ConflictCheck, Stage, WaitSync, EmitScript, ExecuteScript,
// Verify and Cleanup — fanning the Stage phase out across workers the way
// the teacher's playPushChanges fans pushes out across semalim.Run.
package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cheggaaa/pb"
	"github.com/odeke-em/semalim"

	"github.com/wukunhuan/gds/config"
	"github.com/wukunhuan/gds/executor"
	"github.com/wukunhuan/gds/gerrors"
	"github.com/wukunhuan/gds/listing"
	"github.com/wukunhuan/gds/mirror"
	"github.com/wukunhuan/gds/model"
	"github.com/wukunhuan/gds/syncwait"
	"github.com/wukunhuan/gds/verify"
)

// State names the Upload Orchestrator's state machine positions (§4.7).
type State int

const (
	StateInit State = iota
	StateSizeSplit
	StateConflictCheck
	StateStage
	StateWaitSync
	StateEmitScript
	StateExecuteScript
	StateVerify
	StateCleanup
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateSizeSplit:
		return "SizeSplit"
	case StateConflictCheck:
		return "ConflictCheck"
	case StateStage:
		return "Stage"
	case StateWaitSync:
		return "WaitSync"
	case StateEmitScript:
		return "EmitScript"
	case StateExecuteScript:
		return "ExecuteScript"
	case StateVerify:
		return "Verify"
	case StateCleanup:
		return "Cleanup"
	case StateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Options controls a single upload invocation.
type Options struct {
	TargetVirtualPath string
	TargetFolderId    string
	Force             bool // §4.7 ConflictCheck: proceed over a name collision instead of failing
	RemoveLocal       bool
	KeepZip           bool // only meaningful for folder uploads
}

// Result reports the final outcome of a completed (or failed) upload.
type Result struct {
	FinalState State
	Staged     []*model.StagedFile
	Verify     *verify.Report
	Overridden []string // names that collided with an existing target entry and were overridden (force=true)

	// LargeFiles names the sources (B1: size >= config.BigFileSize) routed
	// to the manual-upload path instead of Stage/EmitScript/Verify.
	LargeFiles []string
	// ManualUploadInstruction is the text surfaced to the caller when
	// LargeFiles is non-empty, directing the user to place those files into
	// DRIVE_EQUIVALENT themselves.
	ManualUploadInstruction string
}

// Orchestrator wires together the components an upload drives through its
// state machine.
type Orchestrator struct {
	cfg      *config.MirrorConfig
	mirror   *mirror.Mirror
	waiter   *syncwait.Waiter
	exec     *executor.Executor
	listing  *listing.Engine
	verifier *verify.Engine
}

func New(cfg *config.MirrorConfig, m *mirror.Mirror, w *syncwait.Waiter, e *executor.Executor, l *listing.Engine, v *verify.Engine) *Orchestrator {
	return &Orchestrator{cfg: cfg, mirror: m, waiter: w, exec: e, listing: l, verifier: v}
}

// Upload drives sources through the full state machine and returns where it
// ended up. Per §4.7's SizeSplit transition and B1, a file at or above
// config.BigFileSize is routed to a manual-upload path: gds emits an
// instruction directing the user to place it into DRIVE_EQUIVALENT
// themselves and only waits for the vendor agent to sync it, so a slow big
// file cannot block the normal-path files sharing its batch.
func (o *Orchestrator) Upload(ctx context.Context, sources []string, opts Options) (*Result, error) {
	state := StateInit
	result := &Result{}

	normalSources, largeSources, totalSize, err := o.sizeSplit(sources)
	if err != nil {
		return nil, err
	}
	state = StateSizeSplit

	if len(largeSources) > 0 {
		largeNames := make([]string, len(largeSources))
		var largeTotal int64
		for i, s := range largeSources {
			largeNames[i] = filepath.Base(s)
			if info, statErr := os.Stat(s); statErr == nil {
				largeTotal += info.Size()
			}
		}
		result.LargeFiles = largeNames
		result.ManualUploadInstruction = fmt.Sprintf(
			"%v are at or above the %d-byte large-file boundary; place them into %s yourself — gds will only wait for the vendor agent to sync them",
			largeNames, config.BigFileSize, o.cfg.DriveEquivalent(),
		)
		if _, err := o.waiter.WaitForSync(ctx, largeNames, largeTotal, o.cfg.PerFileSyncTimeout, o.cfg.PerDirSyncTimeout); err != nil {
			return result, err
		}
	}

	if len(normalSources) == 0 {
		result.FinalState = StateDone
		return result, nil
	}
	sources = normalSources

	overridden, err := o.conflictCheckTarget(ctx, sources, opts)
	if err != nil {
		return nil, err
	}
	result.Overridden = overridden

	inFlight, err := o.conflictCheck(opts.TargetVirtualPath)
	if err != nil {
		return nil, err
	}
	state = StateConflictCheck

	staged, err := o.stage(ctx, sources, opts.TargetVirtualPath, inFlight, totalSize)
	if err != nil {
		return nil, err
	}
	result.Staged = staged
	state = StateStage

	expectedNames := make([]string, len(staged))
	for i, s := range staged {
		expectedNames[i] = s.MirrorName
	}
	if _, err := o.waiter.WaitForSync(ctx, expectedNames, totalSize, o.cfg.PerFileSyncTimeout, o.cfg.PerDirSyncTimeout); err != nil {
		return nil, err
	}
	state = StateWaitSync

	state = StateEmitScript
	debug := executor.NewDebugBuffer()
	if _, err := o.emitAndExecute(ctx, staged, opts, debug); err != nil {
		return nil, err
	}
	state = StateExecuteScript

	finalNames := make([]string, len(staged))
	for i, s := range staged {
		finalNames[i] = s.OriginalName
	}
	report, verr := o.verifier.VerifyNames(ctx, opts.TargetFolderId, finalNames)
	result.Verify = report
	if verr != nil {
		result.FinalState = StateVerify
		return result, verr
	}
	state = StateVerify

	if err := o.cleanup(staged, opts.RemoveLocal); err != nil {
		return result, err
	}
	state = StateCleanup

	state = StateDone
	result.FinalState = state
	return result, nil
}

// sizeSplit partitions sources into the normal path and the large (B1:
// size >= config.BigFileSize) manual-upload path, and sums the normal
// path's bytes, used to scale the Sync Waiter's deadline (§4.5).
func (o *Orchestrator) sizeSplit(sources []string) (normal, large []string, totalSize int64, err error) {
	for _, s := range sources {
		info, statErr := os.Stat(s)
		if statErr != nil {
			return nil, nil, 0, gerrors.StagingFailure(fmt.Errorf("upload: stat %s: %w", s, statErr))
		}
		if info.Size() >= config.BigFileSize {
			large = append(large, s)
			continue
		}
		normal = append(normal, s)
		totalSize += info.Size()
	}
	return normal, large, totalSize, nil
}

// conflictCheckTarget implements §4.7's ConflictCheck transitions that are
// orthogonal to in-flight staging names: a directory among sources always
// fails (directs the caller to upload-folder, which alone knows how to zip
// and extract one), and a name already present in the target directory
// fails unless opts.Force is set, in which case it is reported back as
// Overridden ("Overriding…") rather than blocking the upload.
func (o *Orchestrator) conflictCheckTarget(ctx context.Context, sources []string, opts Options) ([]string, error) {
	for _, s := range sources {
		info, err := os.Stat(s)
		if err != nil {
			return nil, gerrors.StagingFailure(fmt.Errorf("upload: stat %s: %w", s, err))
		}
		if info.IsDir() {
			return nil, gerrors.Generic(fmt.Errorf("upload: %s is a directory", s)).
				WithSuggestion("use `upload-folder` for directories")
		}
	}

	if opts.TargetFolderId == "" {
		return nil, nil
	}
	entries, err := o.listing.List(ctx, opts.TargetFolderId)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool, len(entries))
	for _, e := range entries {
		existing[e.Name] = true
	}

	var conflicts []string
	for _, s := range sources {
		name := filepath.Base(s)
		if existing[name] {
			conflicts = append(conflicts, name)
		}
	}
	if len(conflicts) == 0 {
		return nil, nil
	}
	if !opts.Force {
		return nil, gerrors.NameCollision(fmt.Errorf("upload: conflicting name(s): %v", conflicts)).
			WithSuggestion("use `--force` to override")
	}
	return conflicts, nil
}

// conflictCheck lists the current LOCAL_EQUIVALENT contents so stage() knows
// which mirror names are already in flight from a concurrent upload.
func (o *Orchestrator) conflictCheck(targetVirtualPath string) (map[string]bool, error) {
	entries, err := os.ReadDir(o.cfg.LocalEquivalent())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, gerrors.StagingFailure(err)
	}
	inFlight := make(map[string]bool, len(entries))
	for _, e := range entries {
		inFlight[e.Name()] = true
	}
	return inFlight, nil
}

// stage copies every source into LOCAL_EQUIVALENT concurrently, fanned out
// across semalim.Run the way the teacher's playPushChanges fans pushes out,
// with a cheggaaa/pb progress bar tracking total bytes staged.
func (o *Orchestrator) stage(ctx context.Context, sources []string, targetVirtualPath string, inFlight map[string]bool, totalSize int64) ([]*model.StagedFile, error) {
	bar := pb.New64(totalSize)
	bar.Start()
	defer bar.Finish()

	var mu sync.Mutex
	jobsChan := make(chan semalim.Job)
	n := len(sources)
	if n == 0 {
		n = 1
	}

	go func() {
		defer close(jobsChan)
		for i, src := range sources {
			src := src
			idx := i
			jobsChan <- stageJob{
				id: uint64(idx),
				do: func() (interface{}, error) {
					mu.Lock()
					staged, err := o.mirror.Stage(src, targetVirtualPath, inFlight)
					if err == nil {
						inFlight[staged.MirrorName] = true
					}
					mu.Unlock()
					if err == nil {
						if info, statErr := os.Stat(src); statErr == nil {
							bar.Add64(info.Size())
						}
					}
					return staged, err
				},
			}
		}
	}()

	results := semalim.Run(jobsChan, uint64(n))
	staged := make([]*model.StagedFile, 0, len(sources))
	var firstErr error
	for r := range results {
		v, err := r.Value(), r.Err()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sf, ok := v.(*model.StagedFile)
		if ok {
			staged = append(staged, sf)
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return staged, nil
}

type stageJob struct {
	id uint64
	do func() (interface{}, error)
}

func (j stageJob) Id() interface{}            { return j.id }
func (j stageJob) Do() (interface{}, error)   { return j.do() }

// emitAndExecute builds the distributed mv script for the staged batch and
// runs it through the Remote Command Executor (§4.7 "EmitScript" and
// "ExecuteScript"), mirroring
// RemoteCommands._generate_multi_file_remote_commands's per-file retry loop.
func (o *Orchestrator) emitAndExecute(ctx context.Context, staged []*model.StagedFile, opts Options, debug *executor.DebugBuffer) (model.SentinelResult, error) {
	script := GenerateMultiFileMoveScript(staged, o.cfg.DriveEquivalent(), opts.TargetVirtualPath)
	return o.exec.Run(ctx, "bash", []string{"-c", script}, o.cfg.RemoteRoot(), o.cfg.RemoteRoot(), "", debug)
}

func (o *Orchestrator) cleanup(staged []*model.StagedFile, removeLocal bool) error {
	for _, s := range staged {
		if err := o.mirror.Cleanup(s); err != nil {
			return err
		}
		if removeLocal {
			if err := o.mirror.RemoveOrigin(s); err != nil {
				return err
			}
		}
	}
	return nil
}

// GenerateMultiFileMoveScript builds the distributed per-file retry-60
// bash script that moves every staged file from DRIVE_EQUIVALENT to its
// resolved destination, the Go counterpart of
// _generate_multi_file_remote_commands.
func GenerateMultiFileMoveScript(staged []*model.StagedFile, driveEquivalent, targetPath string) string {
	var b []byte
	app := func(s string) { b = append(b, s...) }

	app("set -e\n")
	for _, s := range staged {
		dest := filepath.Join(targetPath, s.OriginalName)
		src := filepath.Join(driveEquivalent, s.MirrorName)
		app(fmt.Sprintf("mkdir -p %q\n", filepath.Dir(dest)))
		app(fmt.Sprintf("echo -n \"moving %s: \"\n", s.OriginalName))
		app("for attempt in $(seq 1 60); do\n")
		app(fmt.Sprintf("  if mv %q %q 2>/dev/null; then echo '√'; break; fi\n", src, dest))
		app("  if [ \"$attempt\" -eq 60 ]; then echo '✗'; fi\n")
		app("  sleep 1\n")
		app("done\n")
	}
	return string(b)
}
