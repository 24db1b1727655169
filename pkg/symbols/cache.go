// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package symbols maintains an in-memory bidirectional index of symbol
// name to defining locations, and file to the symbols it defines, holding
// one (name -> []Location) and one (file -> []string) map per open shard
// (spec §4.2). The indexing pipeline keeps it current as it reindexes
// files; the query engine does not read it, so symbol and definition
// queries are answered from the store.
package symbols

import (
	"sync"

	"github.com/canopy-dev/canopy/pkg/handle"
)

// Location is the minimal addressable position a symbol cache entry
// carries; full metadata is hydrated from the store on demand.
type Location struct {
	HandleID string
	FilePath string
	Name     string
	NodeType handle.NodeType
	Span     handle.Span
	Lines    handle.LineRange
}

// Cache is a bidirectional, in-memory symbol index for one repo shard.
// It is safe for concurrent use: reads take an RLock, and Add, EvictFile
// and ReplaceFile each take the write lock.
type Cache struct {
	mu      sync.RWMutex
	forward map[string][]Location // name -> locations
	reverse map[string][]string   // file path -> symbol names defined there
}

// New returns an empty Cache, ready to be populated by Add or
// ReplaceFile.
func New() *Cache {
	return &Cache{
		forward: make(map[string][]Location),
		reverse: make(map[string][]string),
	}
}

// Lookup returns every known location for name, O(1) plus the size of
// the result set.
func (c *Cache) Lookup(name string) []Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	locs := c.forward[name]
	out := make([]Location, len(locs))
	copy(out, locs)
	return out
}

// NamesInFile returns every symbol name the cache believes path defines.
func (c *Cache) NamesInFile(path string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := c.reverse[path]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Add registers one location under its name, used both by preload and by
// the indexing pipeline when it commits new nodes for a file.
func (c *Cache) Add(loc Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(loc)
}

func (c *Cache) addLocked(loc Location) {
	c.forward[loc.Name] = append(c.forward[loc.Name], loc)
	names := c.reverse[loc.FilePath]
	for _, n := range names {
		if n == loc.Name {
			return
		}
	}
	c.reverse[loc.FilePath] = append(names, loc.Name)
}

// EvictFile removes every location the cache attributes to path, in
// O(k) where k is the number of symbols path previously defined - the
// bound spec §4.2 calls out for reindex churn.
func (c *Cache) EvictFile(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictFileLocked(path)
}

func (c *Cache) evictFileLocked(path string) {
	names := c.reverse[path]
	delete(c.reverse, path)
	for _, name := range names {
		locs := c.forward[name]
		filtered := locs[:0]
		for _, loc := range locs {
			if loc.FilePath != path {
				filtered = append(filtered, loc)
			}
		}
		if len(filtered) == 0 {
			delete(c.forward, name)
		} else {
			c.forward[name] = filtered
		}
	}
}

// ReplaceFile atomically evicts path's prior entries and installs locs in
// their place, the operation the indexing pipeline calls once per
// reindexed file so readers never observe a half-updated file.
func (c *Cache) ReplaceFile(path string, locs []Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictFileLocked(path)
	for _, loc := range locs {
		c.addLocked(loc)
	}
}

// Len reports the number of distinct symbol names currently indexed.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.forward)
}
