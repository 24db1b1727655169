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

package query

import "github.com/canopy-dev/canopy/pkg/handle"

// Result is the query response envelope (spec §6): handles, ref_handles,
// and the bookkeeping an agent needs to decide whether to expand or
// refine.
type Result struct {
	Handles    []handle.Handle    `json:"handles"`
	RefHandles []handle.RefHandle `json:"ref_handles"`

	TotalTokens  int  `json:"total_tokens"`
	TotalMatches int  `json:"total_matches"`
	Truncated    bool `json:"truncated"`

	AutoExpanded       bool     `json:"auto_expanded,omitempty"`
	ExpandedHandleIDs  []string `json:"expanded_handle_ids,omitempty"`
	ExpandNote         string   `json:"expand_note,omitempty"`
}
