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
	"os"
)

// Stats summarizes a shard's contents, the JSON `canopy status` prints.
type Stats struct {
	Files         int   `json:"files"`
	Nodes         int   `json:"nodes"`
	Refs          int   `json:"refs"`
	FeedbackEvents int  `json:"feedback_events"`
	SizeBytes     int64 `json:"size_bytes"`
}

// Stat reports row counts across the shard's tables and the on-disk file
// size, read through the reader pool so it never contends with an
// in-flight Batch.
func (s *Store) Stat(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		table string
		dst   *int
	}{
		{"files", &st.Files},
		{"nodes", &st.Nodes},
		{"refs", &st.Refs},
		{"feedback_events", &st.FeedbackEvents},
	}
	for _, c := range counts {
		row := s.readDB.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", c.table))
		if err := row.Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("store: count %s: %w", c.table, err)
		}
	}

	info, err := os.Stat(s.path)
	if err == nil {
		st.SizeBytes = info.Size()
	}
	return st, nil
}
