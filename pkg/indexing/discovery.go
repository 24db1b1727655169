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

// Package indexing implements Canopy's incremental indexing pipeline:
// ignore-aware file discovery, an mtime/TTL + content-hash skip policy,
// and a bounded parallel parse pipeline feeding a single DB-writer
// goroutine (spec §4.1, §6).
package indexing

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// defaultIgnoreGlobs mirrors the teacher's RepoLoader exclude defaults,
// generalized from "Go project" assumptions to any language mix.
var defaultIgnoreGlobs = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/vendor/**",
	"**/.canopy/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
}

// DiscoveryConfig controls the file walk.
type DiscoveryConfig struct {
	Root          string
	IncludeGlobs  []string // empty means "everything not ignored"
	IgnoreGlobs   []string // merged with defaultIgnoreGlobs
	MaxFileBytes  int64    // 0 means unbounded
}

// Discover walks root and returns every file path (relative to root,
// slash-separated) that survives the include/ignore glob filters and the
// size cap, sorted for deterministic downstream processing.
func Discover(cfg DiscoveryConfig) ([]string, map[string]int, error) {
	ignore := append(append([]string{}, defaultIgnoreGlobs...), cfg.IgnoreGlobs...)
	skipReasons := make(map[string]int)

	var out []string
	err := filepath.WalkDir(cfg.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			skipReasons["walk_error"]++
			return nil
		}
		rel, relErr := filepath.Rel(cfg.Root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if matchesAny(rel+"/", ignore) || matchesAny(rel, ignore) {
				skipReasons["ignored_dir"]++
				return filepath.SkipDir
			}
			return nil
		}

		if matchesAny(rel, ignore) {
			skipReasons["ignored"]++
			return nil
		}
		if len(cfg.IncludeGlobs) > 0 && !matchesAny(rel, cfg.IncludeGlobs) {
			skipReasons["not_included"]++
			return nil
		}
		if cfg.MaxFileBytes > 0 {
			info, statErr := d.Info()
			if statErr == nil && info.Size() > cfg.MaxFileBytes {
				skipReasons["too_large"]++
				return nil
			}
		}
		if isLikelyBinary(rel) {
			skipReasons["binary"]++
			return nil
		}

		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, skipReasons, err
	}

	sort.Strings(out)
	return out, skipReasons, nil
}

func matchesAny(path string, globs []string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, path); ok {
			return true
		}
	}
	return false
}

var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true, ".exe": true,
	".so": true, ".dylib": true, ".dll": true, ".wasm": true, ".woff": true,
	".woff2": true, ".ttf": true, ".eot": true, ".mp4": true, ".mov": true,
}

func isLikelyBinary(path string) bool {
	return binaryExtensions[filepath.Ext(path)]
}
