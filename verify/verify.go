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

// Package verify is the Verification Engine (C9): after an upload's remote
// script reports success, it re-lists the target folder and confirms every
// expected name actually landed, retrying per-file up to 60 times the way
// RemoteCommands._verify_upload_with_progress does in the original
// implementation.
package verify

import (
	"context"
	"fmt"
	"time"

	gdslog "github.com/odeke-em/log"

	"github.com/wukunhuan/gds/gerrors"
	"github.com/wukunhuan/gds/listing"
)

const MaxAttemptsPerFile = 60

// Report is the outcome of verifying a batch of expected names against a
// target folder.
type Report struct {
	Found   []string
	Missing []string
}

func (r *Report) Success() bool { return len(r.Missing) == 0 }

// Engine verifies uploaded names land in the target folder.
type Engine struct {
	listing *listing.Engine
	log     *gdslog.Logger
}

func New(listingEngine *listing.Engine, log *gdslog.Logger) *Engine {
	return &Engine{listing: listingEngine, log: log}
}

// VerifyNames checks, for each expected name, that FindByName succeeds
// within MaxAttemptsPerFile one-second-spaced retries (§4.7 "Verify"),
// printing a progress character per attempt the way the original prints
// "." / "√" / "✗" while waiting.
func (e *Engine) VerifyNames(ctx context.Context, folderId string, expected []string) (*Report, error) {
	report := &Report{}

	for _, name := range expected {
		found := false
		for attempt := 1; attempt <= MaxAttemptsPerFile; attempt++ {
			entry, err := e.listing.FindByName(ctx, folderId, name)
			if err != nil {
				return nil, err
			}
			if entry != nil {
				e.log.Logf("√")
				found = true
				break
			}
			if attempt == MaxAttemptsPerFile {
				e.log.Logf("✗")
				break
			}
			e.log.Logf(".")

			select {
			case <-ctx.Done():
				return nil, gerrors.SyncTimeout(ctx.Err())
			case <-time.After(time.Second):
			}
		}
		if found {
			report.Found = append(report.Found, name)
		} else {
			report.Missing = append(report.Missing, name)
		}
	}
	e.log.Logln()

	if !report.Success() {
		return report, gerrors.VerifyMiss(fmt.Errorf("verify: missing %v", report.Missing))
	}
	return report, nil
}
