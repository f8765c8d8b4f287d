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

package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"github.com/wukunhuan/gds/gerrors"
	"github.com/wukunhuan/gds/model"
)

var entriesBucket = []byte("cache_entries")

// BoltStore is the on-disk content-addressed index backing the Download
// Cache (C10): one bolt bucket keyed by remote path, valued by a JSON
// model.CacheEntry. boltdb is listed in the teacher's go.mod without being
// exercised by its own source; here it is wired to the one component in
// scope that plausibly needs an embedded k/v index.
type BoltStore struct {
	db *bolt.DB
}

func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, gerrors.CacheInconsistency(fmt.Errorf("cache: open %s: %w", path, err))
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entriesBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, gerrors.CacheInconsistency(fmt.Errorf("cache: init bucket: %w", err))
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) Get(remotePath string) (*model.CacheEntry, bool, error) {
	var entry *model.CacheEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		raw := b.Get([]byte(remotePath))
		if raw == nil {
			return nil
		}
		var e model.CacheEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}
		entry = &e
		return nil
	})
	if err != nil {
		return nil, false, gerrors.CacheInconsistency(fmt.Errorf("cache: get %s: %w", remotePath, err))
	}
	return entry, entry != nil, nil
}

func (s *BoltStore) Put(remotePath string, entry *model.CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return gerrors.CacheInconsistency(fmt.Errorf("cache: marshal %s: %w", remotePath, err))
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).Put([]byte(remotePath), raw)
	})
}

func (s *BoltStore) Delete(remotePath string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).Delete([]byte(remotePath))
	})
}

// ForEach iterates every cached entry in the bolt bucket, stopping at the
// first error fn returns.
func (s *BoltStore) ForEach(fn func(remotePath string, entry *model.CacheEntry) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		return b.ForEach(func(k, v []byte) error {
			var e model.CacheEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			return fn(string(k), &e)
		})
	})
}
