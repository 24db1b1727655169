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

// Package contract validates query parameters shared by the two query
// front ends (pkg/query's parameterized API and its s-expression surface)
// so a malformed request is rejected identically no matter which surface
// it arrived through.
//
// # Required Fields
//
// At least one search parameter must be present: pattern/patterns, symbol,
// section, file_path, parent, or glob. A request with none of these fails
// validation with a QueryParse-class message.
//
//	result := contract.ValidateQueryParams(params)
//	if !result.OK {
//	    return fmt.Errorf("query: %s", result.Message)
//	}
//
// # Enum Fields
//
// match must be "any" or "all" when multiple patterns are given; kind
// must be one of "definition", "reference", "any" when paired with
// symbol. Both are validated here rather than in each front end.
package contract
