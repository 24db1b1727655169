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

// Package config loads .canopy/config.toml, the per-repo settings file
// that tunes indexing and query defaults without requiring command-line
// flags on every invocation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Core holds query-engine defaults.
type Core struct {
	DefaultResultLimit int           `toml:"default_result_limit"`
	TTL                time.Duration `toml:"ttl"`
}

// Indexing holds pipeline tuning knobs.
type Indexing struct {
	DefaultGlob     string `toml:"default_glob"`
	PreviewBytes    int    `toml:"preview_bytes"`
	ChunkLines      int    `toml:"chunk_lines"`
	ChunkOverlap    int    `toml:"chunk_overlap"`
	MmapWindowBytes int64  `toml:"mmap_window_bytes"`
	BatchSize       int    `toml:"batch_size"`
}

// Ignore holds discovery-time exclusion patterns, merged with the
// pipeline's built-in defaults rather than replacing them.
type Ignore struct {
	Patterns []string `toml:"patterns"`
}

// Config is the parsed shape of .canopy/config.toml.
type Config struct {
	Core     Core     `toml:"core"`
	Indexing Indexing `toml:"indexing"`
	Ignore   Ignore   `toml:"ignore"`
}

// Default returns a Config populated with the values spec.md §6 lists,
// before any file on disk is consulted.
func Default() Config {
	return Config{
		Core: Core{
			DefaultResultLimit: 16,
			TTL:                24 * time.Hour,
		},
		Indexing: Indexing{
			DefaultGlob:     "**/*",
			PreviewBytes:    100,
			ChunkLines:      50,
			ChunkOverlap:    10,
			MmapWindowBytes: 256 << 20,
			BatchSize:       500,
		},
	}
}

// Path returns the conventional config file location under root.
func Path(root string) string {
	return filepath.Join(root, ".canopy", "config.toml")
}

// Load reads .canopy/config.toml under root, if present, and overlays it
// onto Default(). A missing file is not an error: every repo works with
// defaults alone. A malformed file is.
func Load(root string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(root))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", Path(root), err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", Path(root), err)
	}
	if cfg.Core.DefaultResultLimit <= 0 {
		cfg.Core.DefaultResultLimit = 16
	}
	if cfg.Core.TTL <= 0 {
		cfg.Core.TTL = 24 * time.Hour
	}
	if cfg.Indexing.PreviewBytes <= 0 {
		cfg.Indexing.PreviewBytes = 100
	}
	if cfg.Indexing.ChunkLines <= 0 {
		cfg.Indexing.ChunkLines = 50
	}
	if cfg.Indexing.ChunkOverlap <= 0 {
		cfg.Indexing.ChunkOverlap = 10
	}
	if cfg.Indexing.MmapWindowBytes <= 0 {
		cfg.Indexing.MmapWindowBytes = 256 << 20
	}
	if cfg.Indexing.BatchSize <= 0 {
		cfg.Indexing.BatchSize = 500
	}
	return cfg, nil
}

// Write serializes cfg to .canopy/config.toml under root, creating the
// .canopy directory if needed. Used by `canopy init`.
func Write(root string, cfg Config) error {
	dir := filepath.Dir(Path(root))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create %s: %w", dir, err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(Path(root), data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", Path(root), err)
	}
	return nil
}
