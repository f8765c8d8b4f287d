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

// Package resolver maps a virtual path, rooted at ~, onto Drive folder ids,
// on-disk mirror paths and remote-script paths (C2). It is strictly
// read-only: it never creates an intermediate folder, the way the teacher's
// FindByPath only ever walks an existing tree (src/remote.go findByPathRecv).
package resolver

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/wukunhuan/gds/config"
	"github.com/wukunhuan/gds/gateway"
	"github.com/wukunhuan/gds/gerrors"
	"github.com/wukunhuan/gds/model"
)

// Shell is the minimal view of a shell record the resolver needs to resolve
// a relative path; kept narrow so resolver does not import shellreg.
type Shell struct {
	CurrentVirtualPath string
	CurrentFolderId    string
}

// Result is what Resolve returns: a folder id plus its canonical display
// path (§4.1's "(folder_id, canonical_display_path)"), or, when the last
// component names a file, a distinguished file result consumed by the
// Listing Engine's `ls <file>` handling.
type Result struct {
	FolderId    string
	DisplayPath string
	IsFile      bool
	FileId      string
	FileName    string
}

// Resolver is constructed once per process with the gateway and the
// well-known virtual root, then reused across every `cd`/`ls`/upload call.
type Resolver struct {
	api  gateway.DriveAPI
	cfg  *config.MirrorConfig
}

func New(api gateway.DriveAPI, cfg *config.MirrorConfig) *Resolver {
	return &Resolver{api: api, cfg: cfg}
}

func splitDisplay(displayPath string) []string {
	trimmed := strings.TrimPrefix(displayPath, "~")
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func splitVirtual(virtualPath string) (absolute bool, comps []string) {
	v := virtualPath
	switch {
	case v == "~" || v == "":
		return true, nil
	case strings.HasPrefix(v, "~/"):
		absolute = true
		v = strings.TrimPrefix(v, "~/")
	case strings.HasPrefix(v, "/"):
		absolute = true
		v = strings.TrimPrefix(v, "/")
	}

	v = strings.Trim(v, "/")
	if v == "" {
		return absolute, nil
	}
	return absolute, strings.Split(v, "/")
}

func displayOf(comps []string) string {
	if len(comps) == 0 {
		return "~"
	}
	return "~/" + strings.Join(comps, "/")
}

// Resolve implements §4.1's resolution algorithm exactly: left-to-right
// component walk, `.` skipped, `..` asks the gateway for parents, anything
// else must name an immediate child folder (or, as the last component, a
// file).
func (r *Resolver) Resolve(ctx context.Context, virtualPath string, current Shell) (*Result, error) {
	absolute, targetComps := splitVirtual(virtualPath)

	folderId := current.CurrentFolderId
	var comps []string
	if absolute {
		folderId = r.cfg.RemoteRootFolderId
	} else {
		comps = splitDisplay(current.CurrentVirtualPath)
	}

	for i, comp := range targetComps {
		isLast := i == len(targetComps)-1

		switch comp {
		case ".":
			continue
		case "..":
			if len(comps) == 0 {
				return nil, gerrors.PathNotFound(fmt.Errorf("resolver: %q: already at root", virtualPath))
			}
			parents, err := r.api.Parents(ctx, folderId)
			if err != nil {
				return nil, err
			}
			if len(parents) == 0 {
				return nil, gerrors.PathNotFound(fmt.Errorf("resolver: %q: no parent for folder %s", virtualPath, folderId))
			}
			folderId = parents[0]
			comps = comps[:len(comps)-1]
			continue
		}

		children, err := r.api.ListChildren(ctx, folderId, 0)
		if err != nil {
			return nil, err
		}

		match, matchIsFolder := firstNamedMatch(children, comp, isLast)
		if match == nil {
			return nil, gerrors.PathNotFound(fmt.Errorf("resolver: %q: %q not found", virtualPath, comp))
		}

		if !matchIsFolder {
			if !isLast {
				return nil, gerrors.PathNotFound(fmt.Errorf("resolver: %q: %q is a file, not a directory", virtualPath, comp))
			}
			return &Result{
				FolderId:    folderId,
				DisplayPath: displayOf(append(append([]string{}, comps...), comp)),
				IsFile:      true,
				FileId:      match.Id,
				FileName:    match.Name,
			}, nil
		}

		folderId = match.Id
		comps = append(comps, comp)
	}

	return &Result{
		FolderId:    folderId,
		DisplayPath: displayOf(comps),
	}, nil
}

// firstNamedMatch implements the tie-break rule (§4.1): case-sensitive exact
// match, first occurrence wins. The (parent ID, name) pair is not unique at
// the provider (§3), so an intermediate component must skip a same-named
// file sibling and hold out for the folder; only the trailing component may
// settle for a non-folder match.
func firstNamedMatch(children []*model.ListingEntry, name string, isLast bool) (entry *model.ListingEntry, isFolder bool) {
	var firstAny *model.ListingEntry
	for _, c := range children {
		if c.Name != name {
			continue
		}
		if c.Kind == model.KindFolder {
			return c, true
		}
		if firstAny == nil {
			firstAny = c
		}
	}
	if isLast && firstAny != nil {
		return firstAny, false
	}
	return nil, false
}

// MirrorPath projects a canonical display path onto the on-disk mirror tree
// under REMOTE_ROOT (§4.1 "the resolver is ALSO the sole place that maps a
// virtual path to the on-disk mirror path").
func (r *Resolver) MirrorPath(displayPath string) string {
	comps := splitDisplay(displayPath)
	return path.Join(append([]string{r.cfg.RemoteRoot()}, comps...)...)
}

// RemotePath projects a canonical display path onto the path used inside
// emitted bash scripts running on the user's remote host.
func (r *Resolver) RemotePath(displayPath string) string {
	comps := splitDisplay(displayPath)
	return "/" + strings.Join(comps, "/")
}

// Idempotent reports P1: resolving a path's own canonical display path from
// the virtual root must return the identical Result.
func (r *Resolver) Idempotent(ctx context.Context, res *Result) (bool, error) {
	again, err := r.Resolve(ctx, res.DisplayPath, Shell{CurrentFolderId: r.cfg.RemoteRootFolderId, CurrentVirtualPath: "~"})
	if err != nil {
		return false, err
	}
	return again.FolderId == res.FolderId && again.DisplayPath == res.DisplayPath, nil
}
