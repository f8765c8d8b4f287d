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

// Package mirror is the staging root on local disk that the vendor agent
// syncs bidirectionally with the cloud (C5). It exposes the rename/move
// primitives the Upload Orchestrator needs and a non-fatal network liveness
// probe, mirroring the way the teacher treats mount points as a reserved,
// disposable local subtree (src/push.go's clearMountPoints/config.Mount).
package mirror

import (
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mxk/go-flowrate/flowrate"

	"github.com/wukunhuan/gds/config"
	"github.com/wukunhuan/gds/gerrors"
	"github.com/wukunhuan/gds/model"
)

// DefaultStageRateLimit caps the byte rate of a stage() copy so a large
// staged batch does not starve the vendor agent's own disk I/O (§4.4).
const DefaultStageRateLimit = 8 * 1024 * 1024 // 8 MiB/s

// Mirror operates on the two reserved subtrees under a vendor-synced
// folder: LOCAL_EQUIVALENT (outbound staging) and DRIVE_EQUIVALENT (inbound
// landing), per §4.4 and the Mirror layout in §6.
type Mirror struct {
	cfg           *config.MirrorConfig
	rateLimitBps  int64
	probeURL      string
	probeClient   *http.Client
}

func New(cfg *config.MirrorConfig) *Mirror {
	return &Mirror{
		cfg:          cfg,
		rateLimitBps: DefaultStageRateLimit,
		probeURL:     "https://www.googleapis.com/generate_204",
		probeClient:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (m *Mirror) ensureDirs() error {
	for _, d := range []string{m.cfg.LocalEquivalent(), m.cfg.DriveEquivalent(), m.cfg.RemoteRoot()} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return gerrors.StagingFailure(fmt.Errorf("mirror: mkdir %s: %w", d, err))
		}
	}
	return nil
}

// Stage copies source into LOCAL_EQUIVALENT, renaming it to a
// collision-avoiding form if a same-named stage is already in flight (§4.4).
func (m *Mirror) Stage(source, targetVirtualPath string, inFlight map[string]bool) (*model.StagedFile, error) {
	if err := m.ensureDirs(); err != nil {
		return nil, err
	}

	base := filepath.Base(source)
	mirrorName := base
	renamed := false

	if inFlight[mirrorName] {
		mirrorName = uniqueName(base)
		renamed = true
	}

	dst := filepath.Join(m.cfg.LocalEquivalent(), mirrorName)
	if err := rateLimitedCopy(source, dst, m.rateLimitBps); err != nil {
		return nil, gerrors.StagingFailure(fmt.Errorf("mirror: stage %s: %w", source, err))
	}

	return &model.StagedFile{
		OriginPath:        source,
		MirrorName:        mirrorName,
		OriginalName:      base,
		TargetVirtualPath: targetVirtualPath,
		Renamed:           renamed,
	}, nil
}

// uniqueName produces a collision-avoiding name by prefixing base with the
// first four bytes of a sha1 over the base name and the current nanosecond
// time; the file's content is not hashed.
func uniqueName(base string) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s-%d", base, time.Now().UnixNano())
	return fmt.Sprintf("%x-%s", h.Sum(nil)[:4], base)
}

func rateLimitedCopy(src, dst string, bps int64) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	limited := flowrate.NewWriter(out, bps)
	defer limited.Close()

	_, err = io.Copy(limited, in)
	return err
}

// Cleanup removes a staged file from LOCAL_EQUIVALENT once the Upload
// Orchestrator's Verify stage has confirmed success (§4.7 "Cleanup").
func (m *Mirror) Cleanup(staged *model.StagedFile) error {
	p := filepath.Join(m.cfg.LocalEquivalent(), staged.MirrorName)
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return gerrors.StagingFailure(fmt.Errorf("mirror: cleanup %s: %w", p, err))
	}
	return nil
}

// RemoveOrigin unlinks the original local source file when remove_local=true.
func (m *Mirror) RemoveOrigin(staged *model.StagedFile) error {
	if err := os.Remove(staged.OriginPath); err != nil && !os.IsNotExist(err) {
		return gerrors.StagingFailure(fmt.Errorf("mirror: remove-local %s: %w", staged.OriginPath, err))
	}
	return nil
}

// ObserveDriveEquivalent lists the names currently present in
// DRIVE_EQUIVALENT, the landing zone the Sync Waiter polls (§4.5).
func (m *Mirror) ObserveDriveEquivalent() (map[string]bool, error) {
	entries, err := os.ReadDir(m.cfg.DriveEquivalent())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, gerrors.StagingFailure(fmt.Errorf("mirror: read DRIVE_EQUIVALENT: %w", err))
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}
	return names, nil
}

// NetworkLive probes reachability of the provider. A failure is non-fatal
// per §4.4: callers log a warning and keep going.
func (m *Mirror) NetworkLive() bool {
	resp, err := m.probeClient.Get(m.probeURL)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}
