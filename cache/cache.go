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

// Package cache is the Download Cache (C10): a boltdb-backed index of
// previously downloaded blobs, fronted by an in-memory expirable layer so a
// hot path doesn't round-trip through bolt on every get_media call. Modeled
// on the teacher's g.mkdirAllCache (src/commands.go), which wraps
// odeke-em/cache the same way.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	expirableCache "github.com/odeke-em/cache"

	"github.com/wukunhuan/gds/gateway"
	"github.com/wukunhuan/gds/gerrors"
	"github.com/wukunhuan/gds/model"
)

const memTTL = time.Hour

// Cache serves file content by remote path, short-circuiting the Drive API
// Gateway when a fresh blob is already on local disk.
type Cache struct {
	store   *BoltStore
	mem     *expirableCache.OperationCache
	api     gateway.DriveAPI
	blobDir string
}

func New(store *BoltStore, api gateway.DriveAPI, blobDir string) *Cache {
	return &Cache{store: store, mem: expirableCache.New(), api: api, blobDir: blobDir}
}

func newExpirableValue(v interface{}) *expirableCache.ExpirableValue {
	return expirableCache.NewExpirableValueWithOffset(v, uint64(memTTL.Seconds()))
}

// fresh reports whether a cache entry is still valid for a given live
// listing entry: the recorded modification time must equal the live one.
// The entry's content hash is not compared here.
func fresh(entry *model.CacheEntry, live *model.ListingEntry) bool {
	if entry == nil || live == nil {
		return false
	}
	if !entry.ModTime.Before(live.ModifiedTime) && !entry.ModTime.After(live.ModifiedTime) {
		return true
	}
	return false
}

// Fetch returns a local path to fileId's content, downloading through the
// gateway only on a cache miss or staleness, per §4.9's freshness rule.
func (c *Cache) Fetch(ctx context.Context, remotePath string, live *model.ListingEntry) (string, error) {
	if v, ok := c.mem.Get(remotePath); ok {
		if blobPath, ok2 := v.Value().(string); ok2 {
			if _, err := os.Stat(blobPath); err == nil {
				if entry, found, _ := c.store.Get(remotePath); found && fresh(entry, live) {
					return blobPath, nil
				}
			}
		}
	}

	entry, found, err := c.store.Get(remotePath)
	if err != nil {
		return "", err
	}
	if found && fresh(entry, live) {
		if _, statErr := os.Stat(entry.LocalBlobPath); statErr == nil {
			c.mem.Put(remotePath, newExpirableValue(entry.LocalBlobPath))
			return entry.LocalBlobPath, nil
		}
	}

	return c.download(ctx, remotePath, live)
}

func (c *Cache) download(ctx context.Context, remotePath string, live *model.ListingEntry) (string, error) {
	rc, err := c.api.GetMedia(ctx, live.Id)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	if err := os.MkdirAll(c.blobDir, 0755); err != nil {
		return "", gerrors.CacheInconsistency(fmt.Errorf("cache: mkdir %s: %w", c.blobDir, err))
	}

	tmp, err := os.CreateTemp(c.blobDir, "blob-*")
	if err != nil {
		return "", gerrors.CacheInconsistency(err)
	}
	defer tmp.Close()

	h := sha1.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), rc); err != nil {
		os.Remove(tmp.Name())
		return "", gerrors.CacheInconsistency(fmt.Errorf("cache: download %s: %w", remotePath, err))
	}
	hash := hex.EncodeToString(h.Sum(nil))

	blobPath := filepath.Join(c.blobDir, hash)
	if err := os.Rename(tmp.Name(), blobPath); err != nil {
		return "", gerrors.CacheInconsistency(err)
	}

	entry := &model.CacheEntry{
		RemotePath:    remotePath,
		ContentHash:   hash,
		ModTime:       live.ModifiedTime,
		LocalBlobPath: blobPath,
	}
	if err := c.store.Put(remotePath, entry); err != nil {
		return "", err
	}
	c.mem.Put(remotePath, newExpirableValue(blobPath))
	return blobPath, nil
}

// InvalidateDeleted drops the cached entry for remotePath from both the
// in-memory and the bolt layer, so the next Fetch of that path downloads
// again. Other entries are left untouched.
func (c *Cache) InvalidateDeleted(remotePath string) error {
	c.mem.Remove(remotePath)
	return c.store.Delete(remotePath)
}
