// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import "fmt"

// QueryParams is the wire shape of the parameterized query API (spec
// §4.5, §6). pkg/query.ParamQuery is this same type; it lives here so
// both query front ends and the HTTP/CLI layers validate against one
// definition.
type QueryParams struct {
	Pattern  string   `json:"pattern,omitempty"`
	Patterns []string `json:"patterns,omitempty"`
	Symbol   string   `json:"symbol,omitempty"`
	Section  string   `json:"section,omitempty"`
	Parent   string   `json:"parent,omitempty"`
	Child    string   `json:"child,omitempty"`
	FilePath string   `json:"file_path,omitempty"`
	Kind     string   `json:"kind,omitempty"` // definition | reference | any
	Glob     string   `json:"glob,omitempty"`
	Match    string   `json:"match,omitempty"` // any | all
	Limit    int      `json:"limit,omitempty"`

	ExpandBudget int  `json:"expand_budget,omitempty"`
	Plan         bool `json:"plan,omitempty"`
}

// ValidationResult represents the result of a validation check.
type ValidationResult struct {
	OK      bool
	Message string
}

var validKinds = map[string]bool{"": true, "definition": true, "reference": true, "any": true}
var validMatch = map[string]bool{"": true, "any": true, "all": true}

// ValidateQueryParams enforces the structural rules spec.md §7's
// QueryParse error class covers: at least one search parameter present,
// and the kind/match enums (when set) hold a recognized value.
func ValidateQueryParams(p QueryParams) *ValidationResult {
	hasSearch := p.Pattern != "" || len(p.Patterns) > 0 || p.Symbol != "" ||
		p.Section != "" || p.FilePath != "" || p.Parent != "" || p.Glob != ""
	if !hasSearch {
		return &ValidationResult{OK: false, Message: "query requires one of: pattern, patterns, symbol, section, file_path, parent, glob"}
	}
	if !validKinds[p.Kind] {
		return &ValidationResult{OK: false, Message: fmt.Sprintf("kind must be one of definition|reference|any, got %q", p.Kind)}
	}
	if !validMatch[p.Match] {
		return &ValidationResult{OK: false, Message: fmt.Sprintf("match must be one of any|all, got %q", p.Match)}
	}
	if len(p.Patterns) > 1 && p.Match == "" {
		return &ValidationResult{OK: false, Message: "match is required when patterns has more than one entry"}
	}
	if p.Child != "" && p.Parent == "" {
		return &ValidationResult{OK: false, Message: "child requires parent"}
	}
	if p.Limit < 0 {
		return &ValidationResult{OK: false, Message: "limit must be >= 0"}
	}
	return &ValidationResult{OK: true}
}
