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

// Package runtime implements the caller-facing engine modes spec §4.8
// describes: local (directly against an on-disk store), remote (an HTTP
// client of pkg/service), and auto (the two merged so the caller never
// sees stale results for files it has modified since the service last
// reindexed).
package runtime

import (
	"context"

	"github.com/canopy-dev/canopy/pkg/evidence"
	"github.com/canopy-dev/canopy/pkg/query"
)

// ExpandedContent is one hydrated handle body, the result of an Expand
// call.
type ExpandedContent struct {
	HandleID string
	Content  string
}

// Engine is the one interface every mode implements, so callers (the CLI,
// the MCP tool server) do not branch on mode beyond choosing which Engine
// to construct.
type Engine interface {
	Query(ctx context.Context, params query.ParamQuery) (*evidence.Pack, error)
	Expand(ctx context.Context, ids []string) ([]ExpandedContent, error)
}
