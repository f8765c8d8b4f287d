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

// Package syncwait is the Sync Waiter (C6): it polls DRIVE_EQUIVALENT until
// every name staged by an upload has landed, or gives up once the deadline
// implied by staged size is exceeded. The poll/backoff shape follows the
// teacher's breadthFirst spin.pause()/spin.play() bracketing of a blocking
// call in src/list.go, spinning via the same odeke-em/cli-spinner the
// teacher uses for long-running remote operations.
package syncwait

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	backoff "github.com/odeke-em/exponential-backoff"
	spinner "github.com/odeke-em/cli-spinner"

	"github.com/wukunhuan/gds/gerrors"
	"github.com/wukunhuan/gds/mirror"
)

// Result reports the outcome of a wait_for_sync call (§4.5).
type Result struct {
	Success bool
	Elapsed time.Duration
	Missing []string
}

// Waiter polls a Mirror's DRIVE_EQUIVALENT view for a set of expected names.
type Waiter struct {
	mirror   *mirror.Mirror
	pollEvery time.Duration
	retrier  *backoff.ExponentialBackoffer
}

func New(m *mirror.Mirror) *Waiter {
	return &Waiter{
		mirror:    m,
		pollEvery: 500 * time.Millisecond,
		retrier: &backoff.ExponentialBackoffer{
			RetryCount:    0,
			MaxRetryCount: 20,
		},
	}
}

// timeoutFor scales the deadline with how much was staged, mirroring §4.5's
// "timeout scales with the size of the staged batch": a fixed floor plus a
// per-byte allowance, generous enough for the vendor agent's own debounce.
func timeoutFor(totalBytes int64, perFileTimeout, perDirTimeout int) time.Duration {
	base := time.Duration(perFileTimeout) * time.Second
	scaled := time.Duration(totalBytes/ (10 * 1024 * 1024)) * time.Second // +1s per 10MiB
	if scaled > time.Duration(perDirTimeout)*time.Second {
		scaled = time.Duration(perDirTimeout) * time.Second
	}
	return base + scaled
}

// WaitForSync polls until every name in expected is observed in
// DRIVE_EQUIVALENT, or the size-scaled deadline elapses (§4.5).
func (w *Waiter) WaitForSync(ctx context.Context, expected []string, totalBytes int64, perFileTimeout, perDirTimeout int) (*Result, error) {
	deadline := timeoutFor(totalBytes, perFileTimeout, perDirTimeout)
	start := time.Now()

	spin := spinner.New(10)
	spin.Start()
	defer spin.Stop()

	pending := make(map[string]bool, len(expected))
	for _, n := range expected {
		pending[n] = true
	}

	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()

	timeoutCh := time.After(deadline)

	for {
		present, err := w.mirror.ObserveDriveEquivalent()
		if err != nil {
			return nil, err
		}
		for n := range pending {
			if present[n] {
				delete(pending, n)
			}
		}
		if len(pending) == 0 {
			return &Result{Success: true, Elapsed: time.Since(start)}, nil
		}

		select {
		case <-ctx.Done():
			return nil, gerrors.SyncTimeout(fmt.Errorf("syncwait: context cancelled after %s waiting on %d names", humanize.Bytes(uint64(totalBytes)), len(pending)))
		case <-timeoutCh:
			missing := make([]string, 0, len(pending))
			for n := range pending {
				missing = append(missing, n)
			}
			return &Result{Success: false, Elapsed: time.Since(start), Missing: missing}, gerrors.SyncTimeout(
				fmt.Errorf("syncwait: timed out after %s (%s staged) waiting on %v", deadline, humanize.Bytes(uint64(totalBytes)), missing))
		case <-ticker.C:
			continue
		}
	}
}
