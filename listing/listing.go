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

// Package listing composes the single-directory and recursive views over a
// folder's children (C3), de-duplicating by name and classifying
// folder/file/doc/sheet/slide/notebook, the successor to the teacher's
// src/list.go breadthFirst walk.
package listing

import (
	"context"
	"fmt"
	"sort"
	"strings"

	prettywords "github.com/odeke-em/pretty-words"

	"github.com/wukunhuan/gds/gateway"
	"github.com/wukunhuan/gds/model"
)

const DefaultMaxDepth = 5

// Engine lists a single folder, or recursively DFS-walks one, against the
// Drive API Gateway.
type Engine struct {
	api gateway.DriveAPI
}

func New(api gateway.DriveAPI) *Engine {
	return &Engine{api: api}
}

// List returns one folder's immediate children, de-duplicated by name
// (first occurrence wins, P5) and stable-sorted folders-first,
// case-insensitive by name.
func (e *Engine) List(ctx context.Context, folderId string) ([]*model.ListingEntry, error) {
	children, err := e.api.ListChildren(ctx, folderId, 0)
	if err != nil {
		return nil, err
	}
	return dedupeAndSort(children), nil
}

func dedupeAndSort(entries []*model.ListingEntry) []*model.ListingEntry {
	seen := make(map[string]bool, len(entries))
	out := make([]*model.ListingEntry, 0, len(entries))
	for _, e := range entries {
		if seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		iFolder := out[i].Kind == model.KindFolder
		jFolder := out[j].Kind == model.KindFolder
		if iFolder != jFolder {
			return iFolder
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Tree is the nested structure produced by RecursiveDetailed: every folder
// carries its own Files and Folders arrays (§4.2 "Recursive detailed mode").
type Tree struct {
	Entry   *model.ListingEntry
	Files   []*model.ListingEntry
	Folders []*Tree
}

// Recursive performs a bounded DFS with cycle protection (Drive permits
// cross-linking via shortcuts) and returns the flattened file list in
// traversal order.
func (e *Engine) Recursive(ctx context.Context, rootId string, maxDepth int) ([]*model.ListingEntry, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	visited := map[string]bool{}
	var out []*model.ListingEntry
	if err := e.walk(ctx, rootId, maxDepth, visited, func(entries []*model.ListingEntry) {
		out = append(out, entries...)
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// RecursiveDetailed is Recursive's nested-structure counterpart.
func (e *Engine) RecursiveDetailed(ctx context.Context, root *model.ListingEntry, maxDepth int) (*Tree, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	visited := map[string]bool{}
	tree := &Tree{Entry: root}
	if err := e.walkDetailed(ctx, tree, maxDepth, visited); err != nil {
		return nil, err
	}
	return tree, nil
}

func (e *Engine) walk(ctx context.Context, folderId string, depth int, visited map[string]bool, collect func([]*model.ListingEntry)) error {
	if visited[folderId] {
		return nil
	}
	visited[folderId] = true

	children, err := e.List(ctx, folderId)
	if err != nil {
		return err
	}
	collect(children)

	if depth == 0 {
		return nil
	}
	nextDepth := depth
	if depth > 0 {
		nextDepth = depth - 1
	}

	for _, c := range children {
		if c.Kind != model.KindFolder {
			continue
		}
		if err := e.walk(ctx, c.Id, nextDepth, visited, collect); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) walkDetailed(ctx context.Context, node *Tree, depth int, visited map[string]bool) error {
	if visited[node.Entry.Id] {
		return nil
	}
	visited[node.Entry.Id] = true

	children, err := e.List(ctx, node.Entry.Id)
	if err != nil {
		return err
	}

	for _, c := range children {
		if c.Kind == model.KindFolder {
			node.Folders = append(node.Folders, &Tree{Entry: c})
		} else {
			node.Files = append(node.Files, c)
		}
	}

	if depth == 0 {
		return nil
	}
	nextDepth := depth
	if depth > 0 {
		nextDepth = depth - 1
	}

	for _, child := range node.Folders {
		if err := e.walkDetailed(ctx, child, nextDepth, visited); err != nil {
			return err
		}
	}
	return nil
}

// FindByName looks for an exact-name match among a folder's children,
// without descending; used by the Verification Engine (C9).
func (e *Engine) FindByName(ctx context.Context, folderId, name string) (*model.ListingEntry, error) {
	children, err := e.List(ctx, folderId)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, nil
}

// FormatDetailed renders entries the way `ls --detailed` prints them, one
// raw line per entry word-wrapped at 100 columns via pretty-words, the same
// library the teacher's src/help.go uses to wrap documentation text.
func FormatDetailed(entries []*model.ListingEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		kindTag := "file"
		switch e.Kind {
		case model.KindFolder:
			kindTag = "folder"
		case model.KindDoc:
			kindTag = "doc"
		case model.KindSheet:
			kindTag = "sheet"
		case model.KindSlide:
			kindTag = "slide"
		case model.KindNotebook:
			kindTag = "notebook"
		}
		lines = append(lines, fmt.Sprintf("%-8s %10d  %s  %s", kindTag, e.Size, e.Name, e.WebUrl))
	}

	pr := prettywords.PrettyRubric{Limit: 100, Body: lines}
	wrapped := pr.Format()

	var b strings.Builder
	for _, w := range wrapped {
		b.WriteString(w)
	}
	return b.String()
}
