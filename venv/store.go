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

// Package venv is the Venv State Store (C12): venv_states.json lives on the
// remote side under REMOTE_ENV, mutated only through remote scripts the
// Remote Command Executor runs, and read back the same whole-file way
// shellreg reads shells.json. Package installs fan out across a small
// semalim worker pool, mirroring the teacher's push.go job-fan-out shape.
package venv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/odeke-em/semalim"

	"github.com/wukunhuan/gds/executor"
	"github.com/wukunhuan/gds/gerrors"
	"github.com/wukunhuan/gds/model"
)

// MaxConcurrentInstalls bounds the pip install worker pool (§6 "pip"),
// chosen to stay well under typical PyPI per-host rate limits.
const MaxConcurrentInstalls = 5

// Store mediates all reads and writes of venv_states.json through the
// Remote Command Executor; it holds no local cache because the file is
// mutated by remote scripts outside this process's control.
type Store struct {
	exec       *executor.Executor
	remoteRoot string
	statesPath string // absolute remote path to venv_states.json
}

func New(exec *executor.Executor, remoteRoot, statesPath string) *Store {
	return &Store{exec: exec, remoteRoot: remoteRoot, statesPath: statesPath}
}

// Read fetches and parses the current venv_states.json via a remote `cat`,
// returning an empty VenvStates if the file doesn't exist yet.
func (s *Store) Read(ctx context.Context, remotePath string) (*model.VenvStates, error) {
	res, err := s.exec.Run(ctx, "cat", []string{s.statesPath}, remotePath, s.remoteRoot, "", executor.NewDebugBuffer())
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 || res.Stdout == "" {
		return &model.VenvStates{
			Shells:       map[string]*model.VenvShellState{},
			Environments: map[string]*model.VenvEnvironment{},
		}, nil
	}

	var vs model.VenvStates
	if err := json.Unmarshal([]byte(res.Stdout), &vs); err != nil {
		return nil, gerrors.CacheInconsistency(fmt.Errorf("venv: parse %s: %w", s.statesPath, err))
	}
	if vs.Shells == nil {
		vs.Shells = map[string]*model.VenvShellState{}
	}
	if vs.Environments == nil {
		vs.Environments = map[string]*model.VenvEnvironment{}
	}
	return &vs, nil
}

// Write atomically replaces venv_states.json via a remote python3 script
// (WriteScript), the only path that is allowed to mutate the file.
func (s *Store) Write(ctx context.Context, remotePath string, vs *model.VenvStates) error {
	script, err := WriteScript(s.statesPath, vs)
	if err != nil {
		return err
	}
	res, err := s.exec.Run(ctx, "bash", []string{"-c", script}, remotePath, s.remoteRoot, "", executor.NewDebugBuffer())
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return gerrors.RemoteExecFailure(fmt.Errorf("venv: write script exited %d: %s", res.ExitCode, res.Stderr))
	}
	return nil
}

// Activate records a shell's active environment (the `venv --activate`
// operation), creating envPath's virtualenv on the remote side first via
// ActivateScript if it doesn't already exist, then read-modifying-writing
// the whole states file. envName=="" deactivates (§6 `venv --deactivate`),
// clearing the shell's entry without touching Environments.
func (s *Store) Activate(ctx context.Context, remotePath, shellId, envName, envPath string) error {
	if envName != "" {
		res, err := s.exec.Run(ctx, "bash", []string{"-c", ActivateScript(envPath)}, remotePath, s.remoteRoot, "", executor.NewDebugBuffer())
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return gerrors.RemoteExecFailure(fmt.Errorf("venv: activate script exited %d: %s", res.ExitCode, res.Stderr))
		}
	}

	vs, err := s.Read(ctx, remotePath)
	if err != nil {
		return err
	}
	vs.Shells[shellId] = &model.VenvShellState{
		ActiveEnv:   envName,
		EnvPath:     envPath,
		ActivatedAt: time.Now(),
	}
	if envName != "" {
		if _, ok := vs.Environments[envName]; !ok {
			vs.Environments[envName] = &model.VenvEnvironment{
				CreatedAt:   time.Now(),
				LastUpdated: time.Now(),
				Packages:    map[string]string{},
			}
		}
	}
	return s.Write(ctx, remotePath, vs)
}

// Create provisions a new named environment (§6 `venv --create`) without
// activating it for any shell: the remote virtualenv is created via
// ActivateScript (the same `python3 -m venv` invocation activation uses),
// and an empty Environments entry is recorded.
func (s *Store) Create(ctx context.Context, remotePath, envName, envPath string) error {
	res, err := s.exec.Run(ctx, "bash", []string{"-c", ActivateScript(envPath)}, remotePath, s.remoteRoot, "", executor.NewDebugBuffer())
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return gerrors.RemoteExecFailure(fmt.Errorf("venv: create script exited %d: %s", res.ExitCode, res.Stderr))
	}

	vs, err := s.Read(ctx, remotePath)
	if err != nil {
		return err
	}
	if _, ok := vs.Environments[envName]; !ok {
		vs.Environments[envName] = &model.VenvEnvironment{
			CreatedAt:   time.Now(),
			LastUpdated: time.Now(),
			Packages:    map[string]string{},
		}
	}
	return s.Write(ctx, remotePath, vs)
}

// Delete removes envPath's virtualenv directory on the remote side and its
// Environments entry (§6 `venv --delete`), and deactivates it for any shell
// currently pointing at it so `venv --current` can't report a deleted env.
func (s *Store) Delete(ctx context.Context, remotePath, envName, envPath string) error {
	script := fmt.Sprintf("rm -rf %q", envPath)
	res, err := s.exec.Run(ctx, "bash", []string{"-c", script}, remotePath, s.remoteRoot, "", executor.NewDebugBuffer())
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return gerrors.RemoteExecFailure(fmt.Errorf("venv: delete exited %d: %s", res.ExitCode, res.Stderr))
	}

	vs, err := s.Read(ctx, remotePath)
	if err != nil {
		return err
	}
	delete(vs.Environments, envName)
	for _, shellState := range vs.Shells {
		if shellState != nil && shellState.ActiveEnv == envName {
			shellState.ActiveEnv = ""
			shellState.EnvPath = ""
		}
	}
	return s.Write(ctx, remotePath, vs)
}

// List returns the names of every recorded environment (§6 `venv --list`),
// read-only like Read itself.
func (s *Store) List(ctx context.Context, remotePath string) ([]string, error) {
	vs, err := s.Read(ctx, remotePath)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(vs.Environments))
	for name := range vs.Environments {
		names = append(names, name)
	}
	return names, nil
}

// RecordInstalls diffs a freshly observed package manifest against the
// stored one for envName and updates it, the supplemented "venv package
// manifest diffing" feature from shell_commands.py's pip handling.
func (s *Store) RecordInstalls(ctx context.Context, remotePath, envName string, manifest map[string]string) (added, upgraded map[string]string, err error) {
	vs, err := s.Read(ctx, remotePath)
	if err != nil {
		return nil, nil, err
	}
	env, ok := vs.Environments[envName]
	if !ok {
		env = &model.VenvEnvironment{CreatedAt: time.Now(), Packages: map[string]string{}}
		vs.Environments[envName] = env
	}

	added = map[string]string{}
	upgraded = map[string]string{}
	for pkg, version := range manifest {
		if old, existed := env.Packages[pkg]; !existed {
			added[pkg] = version
		} else if old != version {
			upgraded[pkg] = version
		}
		env.Packages[pkg] = version
	}
	env.LastUpdated = time.Now()

	if err := s.Write(ctx, remotePath, vs); err != nil {
		return nil, nil, err
	}
	return added, upgraded, nil
}

// InstallJob is one `pip install <pkg>` to run against an environment.
type InstallJob struct {
	Id      uint64
	EnvPath string
	Package string
}

func (j InstallJob) asSemalimJob(run func(InstallJob) (interface{}, error)) semalim.Job {
	return installJob{id: j.Id, do: func() (interface{}, error) { return run(j) }}
}

type installJob struct {
	id uint64
	do func() (interface{}, error)
}

func (j installJob) Id() interface{}          { return j.id }
func (j installJob) Do() (interface{}, error) { return j.do() }

// RunInstalls fans jobs out across MaxConcurrentInstalls workers, the way
// the teacher's playPushChanges fans Change jobs out across semalim.Run.
func RunInstalls(jobs []InstallJob, run func(InstallJob) (interface{}, error)) []error {
	jobsChan := make(chan semalim.Job)
	go func() {
		defer close(jobsChan)
		for _, j := range jobs {
			jobsChan <- j.asSemalimJob(run)
		}
	}()

	var errs []error
	for r := range semalim.Run(jobsChan, uint64(MaxConcurrentInstalls)) {
		if err := r.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
