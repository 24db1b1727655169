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

package evidence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canopy-dev/canopy/pkg/handle"
	"github.com/canopy-dev/canopy/pkg/query"
	"github.com/canopy-dev/canopy/pkg/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "canopy.db")
	s, err := store.Open(dbPath, store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mkHandle(path, name string, score float64, nodeType handle.NodeType) handle.Handle {
	span := handle.Span{Start: 0, End: 10}
	return handle.Handle{
		ID:         handle.ID(path, span, name),
		FilePath:   path,
		NodeType:   nodeType,
		Span:       span,
		LineRange:  handle.LineRange{Start: 1, End: 2},
		TokenCount: 10,
		Score:      score,
		Name:       name,
	}
}

func TestPacker_Pack_DiversifiesByFile(t *testing.T) {
	st := openTestStore(t)
	p := New(st)

	res := &query.Result{
		Handles: []handle.Handle{
			mkHandle("a.go", "f1", 2.0, handle.NodeFunction),
			mkHandle("a.go", "f2", 1.9, handle.NodeFunction),
			mkHandle("a.go", "f3", 1.8, handle.NodeFunction),
			mkHandle("b.go", "f4", 1.7, handle.NodeFunction),
		},
		TotalMatches: 4,
	}

	pack, err := p.Pack(context.Background(), res, Options{MaxPerFile: 2, MaxHandles: 8})
	require.NoError(t, err)

	countA := 0
	for _, h := range pack.Handles {
		if h.FilePath == "a.go" {
			countA++
		}
	}
	require.Equal(t, 2, countA)
	require.Len(t, pack.Handles, 3)
}

func TestPacker_Pack_CapsAtMaxHandles(t *testing.T) {
	st := openTestStore(t)
	p := New(st)

	var handles []handle.Handle
	for i := 0; i < 10; i++ {
		handles = append(handles, mkHandle(
			filepath.Join("pkg", string(rune('a'+i))+".go"),
			"sym", 1.0-float64(i)*0.01, handle.NodeFunction))
	}
	res := &query.Result{Handles: handles, TotalMatches: 10}

	pack, err := p.Pack(context.Background(), res, Options{MaxPerFile: 2, MaxHandles: 3})
	require.NoError(t, err)
	require.Len(t, pack.Handles, 3)
	require.True(t, pack.Truncated)
}

func TestPacker_Pack_LowScoreSingleFile_RecommendsRefine(t *testing.T) {
	st := openTestStore(t)
	p := New(st)

	res := &query.Result{
		Handles: []handle.Handle{
			mkHandle("a.go", "f1", 0.05, handle.NodeChunk),
			mkHandle("a.go", "f2", 0.04, handle.NodeChunk),
			mkHandle("a.go", "f3", 0.03, handle.NodeChunk),
		},
		TotalMatches: 3,
	}

	pack, err := p.Pack(context.Background(), res, Options{})
	require.NoError(t, err)
	require.Equal(t, ActionRefineQuery, pack.Guidance.RecommendedAction)
	require.False(t, pack.Guidance.StopQuerying)
}

func TestPacker_Pack_StrongMultiFileEvidence_RecommendsExpand(t *testing.T) {
	st := openTestStore(t)
	p := New(st)

	res := &query.Result{
		Handles: []handle.Handle{
			mkHandle("auth/service.go", "Authenticate", 2.0, handle.NodeFunction),
			mkHandle("auth/middleware.go", "RequireAuth", 1.8, handle.NodeFunction),
		},
		TotalMatches: 2,
	}

	pack, err := p.Pack(context.Background(), res, Options{})
	require.NoError(t, err)
	require.Equal(t, ActionExpandThenAnswer, pack.Guidance.RecommendedAction)
	require.True(t, pack.Guidance.StopQuerying)
	require.Equal(t, "high", pack.Guidance.ConfidenceLabel)
}

func TestPacker_Pack_NoHandles_RecommendsRefine(t *testing.T) {
	st := openTestStore(t)
	p := New(st)

	res := &query.Result{TotalMatches: 0}
	pack, err := p.Pack(context.Background(), res, Options{})
	require.NoError(t, err)
	require.Equal(t, ActionRefineQuery, pack.Guidance.RecommendedAction)
	require.Equal(t, 0, len(pack.Handles))
}

func TestPacker_Pack_RecentlyExpandedIsDiscounted(t *testing.T) {
	st := openTestStore(t)
	p := New(st)
	ctx := context.Background()

	h := mkHandle("a.go", "f1", 2.0, handle.NodeFunction)
	require.NoError(t, p.RecordExpand(ctx, h.ID, h.NodeType, "", true))

	res := &query.Result{Handles: []handle.Handle{h}, TotalMatches: 1}
	pack, err := p.Pack(ctx, res, Options{})
	require.NoError(t, err)
	require.Len(t, pack.Handles, 1)
	require.Less(t, pack.Handles[0].Score, h.Score)
}

func TestPacker_Pack_GlobFeedbackBoostsMatchingFiles(t *testing.T) {
	st := openTestStore(t)
	p := New(st)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, p.RecordExpand(ctx, "h-seed", handle.NodeFunction, "**/auth/**", true))
	}

	res := &query.Result{
		Handles: []handle.Handle{
			mkHandle("auth/service.go", "Authenticate", 1.0, handle.NodeFunction),
			mkHandle("billing/invoice.go", "Charge", 1.0, handle.NodeFunction),
		},
		TotalMatches: 2,
	}
	pack, err := p.Pack(ctx, res, Options{})
	require.NoError(t, err)

	var authScore, billingScore float64
	for _, h := range pack.Handles {
		if h.FilePath == "auth/service.go" {
			authScore = h.Score
		} else {
			billingScore = h.Score
		}
	}
	require.Greater(t, authScore, billingScore)
}

func TestPacker_RecordExpand_RecordsFeedbackEvent(t *testing.T) {
	st := openTestStore(t)
	p := New(st)
	ctx := context.Background()

	require.NoError(t, p.RecordExpand(ctx, "h1", handle.NodeFunction, "**/auth/**", true))

	recent, err := st.RecentlyExpanded(ctx, 10)
	require.NoError(t, err)
	require.Contains(t, recent, "h1")
}
