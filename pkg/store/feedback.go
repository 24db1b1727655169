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
	"context"
	"fmt"
)

// GlobHitRate is the (node_type, glob) feedback prior the evidence scorer
// (spec §4.6, "glob_hit_rate_at_k") folds into ranking: of the
// expand_event rows recorded for a glob, the fraction judged useful.
type GlobHitRate struct {
	Glob      string
	NodeType  string
	Hits      int
	Total     int
}

// Rate returns Hits/Total, or 0 when Total is zero (an unseen glob
// contributes no prior, not a penalty).
func (g GlobHitRate) Rate() float64 {
	if g.Total == 0 {
		return 0
	}
	return float64(g.Hits) / float64(g.Total)
}

// GlobHitRates aggregates expand_event feedback recorded so far, grouped
// by (glob, node_type). The evidence packer loads it once per Pack call
// and hands it to its scorer.
func (s *Store) GlobHitRates(ctx context.Context) ([]GlobHitRate, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT glob, node_type,
			SUM(was_useful) AS hits,
			COUNT(*) AS total
		FROM feedback_events
		WHERE kind = ? AND glob != ''
		GROUP BY glob, node_type`, string(FeedbackExpand))
	if err != nil {
		return nil, fmt.Errorf("store: glob hit rates: %w", err)
	}
	defer rows.Close()

	var out []GlobHitRate
	for rows.Next() {
		var g GlobHitRate
		if err := rows.Scan(&g.Glob, &g.NodeType, &g.Hits, &g.Total); err != nil {
			return nil, fmt.Errorf("store: scan glob hit rate: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// RecentlyExpanded returns the most recently recorded expand_event handle
// ids, newest first, capped at limit. The evidence packer uses this as
// the short-memory ring that deprioritizes handles an agent has already
// pulled full content for (spec §4.6).
func (s *Store) RecentlyExpanded(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT handle_id FROM feedback_events
		WHERE kind = ? AND handle_id != ''
		ORDER BY id DESC
		LIMIT ?`, string(FeedbackExpand), limit)
	if err != nil {
		return nil, fmt.Errorf("store: recently expanded: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan recently expanded: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
