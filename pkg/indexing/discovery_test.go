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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, root, rel string, body []byte) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, body, 0o644))
}

func TestDiscover_SkipsDefaultIgnoredDirs(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "main.go", []byte("package main"))
	writeTestFile(t, root, "node_modules/leftpad/index.js", []byte("module.exports = {}"))
	writeTestFile(t, root, ".git/HEAD", []byte("ref: refs/heads/main"))
	writeTestFile(t, root, "vendor/lib/lib.go", []byte("package lib"))

	files, reasons, err := Discover(DiscoveryConfig{Root: root})
	require.NoError(t, err)
	require.Equal(t, []string{"main.go"}, files)
	require.Greater(t, reasons["ignored_dir"], 0)
}

func TestDiscover_SkipsBinaryExtensions(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "readme.md", []byte("# hi"))
	writeTestFile(t, root, "logo.png", []byte{0x89, 'P', 'N', 'G'})

	files, reasons, err := Discover(DiscoveryConfig{Root: root})
	require.NoError(t, err)
	require.Equal(t, []string{"readme.md"}, files)
	require.Equal(t, 1, reasons["binary"])
}

func TestDiscover_EnforcesMaxFileBytes(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "small.go", []byte("package main"))
	writeTestFile(t, root, "big.go", make([]byte, 4096))

	files, reasons, err := Discover(DiscoveryConfig{Root: root, MaxFileBytes: 1024})
	require.NoError(t, err)
	require.Equal(t, []string{"small.go"}, files)
	require.Equal(t, 1, reasons["too_large"])
}

func TestDiscover_IncludeGlobsRestrictResults(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "a.go", []byte("package a"))
	writeTestFile(t, root, "a.py", []byte("x = 1"))

	files, _, err := Discover(DiscoveryConfig{Root: root, IncludeGlobs: []string{"**/*.go"}})
	require.NoError(t, err)
	require.Equal(t, []string{"a.go"}, files)
}

func TestDiscover_ResultsAreSorted(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "z.go", []byte("package z"))
	writeTestFile(t, root, "a.go", []byte("package a"))
	writeTestFile(t, root, "m/b.go", []byte("package m"))

	files, _, err := Discover(DiscoveryConfig{Root: root})
	require.NoError(t, err)
	require.Equal(t, []string{"a.go", "m/b.go", "z.go"}, files)
}
