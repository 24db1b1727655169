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
	"time"

	"github.com/stretchr/testify/require"

	"github.com/canopy-dev/canopy/pkg/store"
)

func statTestFile(t *testing.T, root, rel string, body []byte, mtime time.Time) os.FileInfo {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.WriteFile(full, body, 0o644))
	require.NoError(t, os.Chtimes(full, mtime, mtime))
	info, err := os.Stat(full)
	require.NoError(t, err)
	return info
}

func TestEvaluateSkip_UnknownFileMustIndex(t *testing.T) {
	root := t.TempDir()
	info := statTestFile(t, root, "a.go", []byte("package a"), time.Now())
	decision := EvaluateSkip(store.FileRecord{}, false, info, HashContent([]byte("package a")), 0, time.Now())
	require.Equal(t, MustIndex, decision)
}

func TestEvaluateSkip_FreshFastPathSkips(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	body := []byte("package a")
	info := statTestFile(t, root, "a.go", body, now)

	prior := store.FileRecord{
		Path: "a.go", MTimeUnix: info.ModTime().Unix(), Size: info.Size(),
		ContentSHA: "stale-sha-does-not-matter-on-fast-path", IndexedAtUnix: now.Unix(),
	}
	decision := EvaluateSkip(prior, true, info, HashContent(body), time.Hour, now.Add(time.Minute))
	require.Equal(t, Skip, decision)
}

func TestEvaluateSkip_ExpiredTTLFallsBackToHashMatch(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	body := []byte("package a")
	info := statTestFile(t, root, "a.go", body, now)
	sha := HashContent(body)

	prior := store.FileRecord{
		Path: "a.go", MTimeUnix: info.ModTime().Unix(), Size: info.Size(),
		ContentSHA: sha, IndexedAtUnix: now.Add(-2 * time.Hour).Unix(),
	}
	decision := EvaluateSkip(prior, true, info, sha, time.Hour, now)
	require.Equal(t, Skip, decision, "expired TTL but identical content hash should still skip")
}

func TestEvaluateSkip_ExpiredTTLWithChangedContentMustIndex(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	info := statTestFile(t, root, "a.go", []byte("package a // changed"), now)

	prior := store.FileRecord{
		Path: "a.go", MTimeUnix: info.ModTime().Unix(), Size: info.Size(),
		ContentSHA: "old-sha", IndexedAtUnix: now.Add(-2 * time.Hour).Unix(),
	}
	decision := EvaluateSkip(prior, true, info, HashContent([]byte("package a // changed and then some")), time.Hour, now)
	require.Equal(t, MustIndex, decision)
}

func TestEvaluateSkip_MtimeChangedButHashSameSkips(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	body := []byte("package a")
	sha := HashContent(body)
	info := statTestFile(t, root, "a.go", body, now)

	prior := store.FileRecord{
		Path: "a.go", MTimeUnix: info.ModTime().Unix() - 3600, Size: info.Size(),
		ContentSHA: sha, IndexedAtUnix: now.Unix(),
	}
	decision := EvaluateSkip(prior, true, info, sha, time.Hour, now)
	require.Equal(t, Skip, decision, "mtime touched without content change should still skip via hash comparison")
}

func TestHashContent_IsDeterministicAndSensitiveToContent(t *testing.T) {
	a := HashContent([]byte("hello"))
	b := HashContent([]byte("hello"))
	c := HashContent([]byte("hellp"))
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}
