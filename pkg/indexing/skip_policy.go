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
	"crypto/sha256"
	"encoding/hex"
	"os"
	"time"

	"github.com/canopy-dev/canopy/pkg/store"
)

// SkipDecision is the outcome of evaluating one file against the skip
// policy.
type SkipDecision int

const (
	// MustIndex means the file has no record or its hash changed.
	MustIndex SkipDecision = iota
	// Skip means the file's content is unchanged since the last index.
	Skip
)

// defaultTTL is how long a file's mtime-based fast path is trusted before a full
// content hash is required again, bounding how stale the skip decision
// can get (spec §4.1, Design Note on TTL).
const defaultTTL = 24 * time.Hour

// EvaluateSkip decides whether path needs reindexing. It first checks the
// fast path: if mtime and size match the stored record and the record is
// within ttl, the file is skipped without reading its content. Otherwise
// it falls through to a content hash computed from data already read by
// the caller (hash-before-read: the caller must pass the bytes it read
// for path, not re-open the file, so a file that changes between the
// mtime check and the hash never produces a false Skip - the TOCTOU gap
// spec §4.1 calls out).
func EvaluateSkip(prior store.FileRecord, found bool, info os.FileInfo, contentSHA string, ttl time.Duration, now time.Time) SkipDecision {
	if !found {
		return MustIndex
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	age := now.Sub(time.Unix(prior.IndexedAtUnix, 0))
	fastPathFresh := age < ttl
	if fastPathFresh && prior.MTimeUnix == info.ModTime().Unix() && prior.Size == info.Size() {
		return Skip
	}
	if prior.ContentSHA == contentSHA {
		return Skip
	}
	return MustIndex
}

// HashContent computes the content hash used for both the skip policy
// and the files table's content_sha column.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
