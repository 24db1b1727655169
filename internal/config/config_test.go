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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_OverlaysFileOntoDefaults(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".canopy"), 0o755))
	toml := `
[core]
default_result_limit = 25

[indexing]
chunk_lines = 80

[ignore]
patterns = ["**/testdata/**"]
`
	require.NoError(t, os.WriteFile(Path(root), []byte(toml), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, 25, cfg.Core.DefaultResultLimit)
	require.Equal(t, 80, cfg.Indexing.ChunkLines)
	require.Equal(t, []string{"**/testdata/**"}, cfg.Ignore.Patterns)
	// Untouched fields keep their defaults.
	require.Equal(t, 10, cfg.Indexing.ChunkOverlap)
	require.Equal(t, 24*time.Hour, cfg.Core.TTL)
}

func TestLoad_MalformedFileErrors(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".canopy"), 0o755))
	require.NoError(t, os.WriteFile(Path(root), []byte("not = [valid toml"), 0o644))

	_, err := Load(root)
	require.Error(t, err)
}

func TestWrite_ThenLoadRoundTrips(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Core.DefaultResultLimit = 42
	cfg.Indexing.DefaultGlob = "src/**"

	require.NoError(t, Write(root, cfg))

	got, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, 42, got.Core.DefaultResultLimit)
	require.Equal(t, "src/**", got.Indexing.DefaultGlob)
}
