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

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Options configures Open. Zero values fall back to the documented
// defaults.
type Options struct {
	// MmapBytes sets PRAGMA mmap_size on the reader pool. Zero uses the
	// default 256 MiB window (spec §4.1, Design Note D2).
	MmapBytes int64

	// ReadConnections bounds the reader pool's connection count. Zero
	// uses a default of 4.
	ReadConnections int

	// Log receives structured events using the teacher's dotted event
	// name convention ("store.open", "store.schema_rebuild", ...). A nil
	// Log falls back to slog.Default().
	Log *slog.Logger
}

// Store is Canopy's on-disk full-text and structural index for one repo
// shard. It is safe for concurrent use: a single writer connection
// serializes batch commits, and a separate read-only connection pool
// serves queries without blocking behind them.
type Store struct {
	path string
	opts Options
	log  *slog.Logger

	// writeMu serializes Batch lifetimes; only one Batch may be open on a
	// Store at a time (spec §6, single-writer-per-shard).
	writeMu sync.Mutex
	writeDB *sql.DB

	readDB *sql.DB
}

const defaultMmapBytes = 256 << 20 // 256 MiB
const defaultReadConnections = 4

// Open opens (creating if absent) the SQLite database at path, applies the
// schema, and verifies the schema version. A version mismatch against an
// existing non-empty database returns ErrSchemaMismatch; the caller (the
// indexing pipeline, on encountering this) deletes the file and calls Open
// again to get a fresh shard.
func Open(path string, opts Options) (*Store, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	if opts.MmapBytes <= 0 {
		opts.MmapBytes = defaultMmapBytes
	}
	if opts.ReadConnections <= 0 {
		opts.ReadConnections = defaultReadConnections
	}

	writeDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open writer: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite3", fmt.Sprintf(
		"%s?mode=ro&_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_mmap_size=%d",
		path, opts.MmapBytes))
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("store: open reader: %w", err)
	}
	readDB.SetMaxOpenConns(opts.ReadConnections)

	s := &Store{path: path, opts: opts, log: log, writeDB: writeDB, readDB: readDB}

	if err := s.ensureSchema(); err != nil {
		writeDB.Close()
		readDB.Close()
		return nil, err
	}

	log.Info("store.open", "path", path, "mmap_bytes", opts.MmapBytes)
	return s, nil
}

func (s *Store) ensureSchema() error {
	if _, err := s.writeDB.Exec(schemaDDL); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}

	row := s.writeDB.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`)
	var stored string
	switch err := row.Scan(&stored); err {
	case sql.ErrNoRows:
		_, err := s.writeDB.Exec(`INSERT INTO meta(key, value) VALUES('schema_version', ?)`,
			strconv.Itoa(schemaVersion))
		if err != nil {
			return fmt.Errorf("store: record schema version: %w", err)
		}
		return nil
	case nil:
		if stored != strconv.Itoa(schemaVersion) {
			return fmt.Errorf("%w: on-disk=%s expected=%d", ErrSchemaMismatch, stored, schemaVersion)
		}
		return nil
	default:
		return fmt.Errorf("store: read schema version: %w", err)
	}
}

// Close releases both connection pools.
func (s *Store) Close() error {
	readErr := s.readDB.Close()
	writeErr := s.writeDB.Close()
	if writeErr != nil {
		return writeErr
	}
	return readErr
}

// Recreate closes the store, deletes the database file (and its WAL/SHM
// siblings) and reopens a fresh one. It is the "controlled recreation"
// path spec.md §4.1 prescribes for a schema mismatch.
func Recreate(path string, opts Options) (*Store, error) {
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		_ = os.Remove(path + suffix)
	}
	return Open(path, opts)
}

// Path reports the database file path the Store was opened against.
func (s *Store) Path() string {
	return s.path
}
