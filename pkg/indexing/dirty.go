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

package indexing

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// DirtyFiles runs `git status --porcelain=v1` against repoPath and
// returns the set of paths with uncommitted working-tree changes,
// relative to repoPath and slash-separated. This is the fast, git-native
// signal Runtime's auto mode (spec §4.8) uses to decide which files a
// stale service shard must have reindexed locally before its results can
// be trusted.
func DirtyFiles(ctx context.Context, repoPath string) (map[string]bool, error) {
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain=v1", "--no-renames")
	cmd.Dir = repoPath
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("indexing: git status in %s: %w: %s", repoPath, err, stdout.String())
	}

	dirty := make(map[string]bool)
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}
		path := strings.TrimSpace(line[3:])
		path = filepath.ToSlash(path)
		dirty[path] = true
	}
	return dirty, scanner.Err()
}

// SinceDelta describes files changed between a git ref and HEAD, split
// into added, modified and deleted paths. No CLI command uses it.
type SinceDelta struct {
	Added    []string
	Modified []string
	Deleted  []string
	All      []string
}

// ComputeSinceDelta shells out to `git diff --name-status` between
// fromRef and HEAD, grounded on the teacher's DeltaDetector
// (pkg/ingestion/delta.go) but trimmed to the add/modify/delete shape
// the indexing pipeline needs.
func ComputeSinceDelta(ctx context.Context, repoPath, fromRef string) (*SinceDelta, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--name-status", fromRef, "HEAD")
	cmd.Dir = repoPath
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("indexing: git diff %s..HEAD in %s: %w", fromRef, repoPath, err)
	}

	delta := &SinceDelta{}
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		status, path := fields[0], filepath.ToSlash(fields[1])
		switch {
		case strings.HasPrefix(status, "A"):
			delta.Added = append(delta.Added, path)
		case strings.HasPrefix(status, "D"):
			delta.Deleted = append(delta.Deleted, path)
		default:
			delta.Modified = append(delta.Modified, path)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	all := append(append(append([]string{}, delta.Added...), delta.Modified...), delta.Deleted...)
	sort.Strings(all)
	delta.All = all
	return delta, nil
}
