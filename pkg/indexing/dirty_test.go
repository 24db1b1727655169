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
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=canopy-test", "GIT_AUTHOR_EMAIL=test@canopy.dev",
		"GIT_COMMITTER_NAME=canopy-test", "GIT_COMMITTER_EMAIL=test@canopy.dev",
	)
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
}

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-q", "-b", "main")
	writeTestFile(t, dir, "a.go", []byte("package a\n"))
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "initial")
	return dir
}

func TestDirtyFiles_CleanRepoReportsNothing(t *testing.T) {
	dir := initTestRepo(t)
	dirty, err := DirtyFiles(context.Background(), dir)
	require.NoError(t, err)
	require.Empty(t, dirty)
}

func TestDirtyFiles_ReportsModifiedAndUntrackedFiles(t *testing.T) {
	dir := initTestRepo(t)
	writeTestFile(t, dir, "a.go", []byte("package a // edited\n"))
	writeTestFile(t, dir, "b.go", []byte("package b\n"))

	dirty, err := DirtyFiles(context.Background(), dir)
	require.NoError(t, err)
	require.True(t, dirty["a.go"])
	require.True(t, dirty["b.go"])
}

func TestComputeSinceDelta_ClassifiesAddModifyDelete(t *testing.T) {
	dir := initTestRepo(t)
	runGit(t, dir, "tag", "before")

	writeTestFile(t, dir, "a.go", []byte("package a // edited\n"))
	writeTestFile(t, dir, "new.go", []byte("package n\n"))
	require.NoError(t, os.Remove(filepath.Join(dir, "a.go")))
	writeTestFile(t, dir, "a.go", []byte("package a // edited\n"))
	runGit(t, dir, "add", "-A")
	runGit(t, dir, "commit", "-q", "-m", "second")

	delta, err := ComputeSinceDelta(context.Background(), dir, "before")
	require.NoError(t, err)
	require.Contains(t, delta.Added, "new.go")
	require.Contains(t, delta.Modified, "a.go")
	require.Empty(t, delta.Deleted)
	require.ElementsMatch(t, append(append([]string{}, delta.Added...), delta.Modified...), delta.All)
}

func TestComputeSinceDelta_DetectsDeletedFiles(t *testing.T) {
	dir := initTestRepo(t)
	runGit(t, dir, "tag", "before")

	require.NoError(t, os.Remove(filepath.Join(dir, "a.go")))
	runGit(t, dir, "add", "-A")
	runGit(t, dir, "commit", "-q", "-m", "delete a.go")

	delta, err := ComputeSinceDelta(context.Background(), dir, "before")
	require.NoError(t, err)
	require.Contains(t, delta.Deleted, "a.go")
}
