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

// Package predictor implements spec.md §4.7: before the first index of a
// large repo, scope the initial indexing batch to the paths a query's
// keywords are most likely to touch, so the first query against a
// multi-thousand-file repo does not block on a full-repo parse.
package predictor

import "strings"

// LargeRepoFileCount is the file-count threshold spec.md §4.7 names:
// below it, there is no reason to scope the first index at all.
const LargeRepoFileCount = 1000

// DefaultGlobs is the scope used when no keyword in the query matches
// the table: spec.md §4.7's "if no keyword matches, fall back to the
// default glob".
var DefaultGlobs = []string{"**/*"}

// keywordGlobs is the static keyword→glob table spec.md §4.7 calls "a
// static configuration constant for the binary": each keyword maps to
// the directories a repo typically keeps that concern under. It is a
// heuristic, not a guarantee — a miss just means the first index falls
// back to DefaultGlobs and subsequent queries broaden the index anyway.
var keywordGlobs = map[string][]string{
	"auth":           {"**/auth/**", "**/login/**"},
	"login":          {"**/auth/**", "**/login/**"},
	"authentication": {"**/auth/**", "**/login/**"},
	"session":        {"**/auth/**", "**/session/**"},
	"token":          {"**/auth/**", "**/token/**"},
	"user":           {"**/user/**", "**/users/**", "**/account/**"},
	"account":        {"**/user/**", "**/users/**", "**/account/**"},
	"payment":        {"**/payment/**", "**/billing/**"},
	"billing":        {"**/payment/**", "**/billing/**"},
	"config":         {"**/config/**", "**/settings/**"},
	"settings":       {"**/config/**", "**/settings/**"},
	"database":       {"**/db/**", "**/database/**", "**/storage/**"},
	"migration":      {"**/migrations/**", "**/db/**"},
	"schema":         {"**/migrations/**", "**/schema/**"},
	"api":            {"**/api/**", "**/handlers/**", "**/routes/**"},
	"route":          {"**/routes/**", "**/api/**"},
	"handler":        {"**/handlers/**", "**/api/**"},
	"endpoint":       {"**/handlers/**", "**/api/**", "**/routes/**"},
	"test":           {"**/test/**", "**/tests/**", "**/*_test.*"},
	"cli":            {"**/cmd/**"},
	"command":        {"**/cmd/**"},
	"server":         {"**/server/**", "**/cmd/**"},
	"client":         {"**/client/**"},
	"queue":          {"**/queue/**", "**/worker/**"},
	"worker":         {"**/worker/**", "**/queue/**"},
	"cache":          {"**/cache/**"},
	"log":            {"**/log/**", "**/logging/**"},
	"logging":        {"**/log/**", "**/logging/**"},
	"metrics":        {"**/metrics/**"},
	"ui":             {"**/ui/**", "**/frontend/**", "**/web/**"},
	"frontend":       {"**/ui/**", "**/frontend/**", "**/web/**"},
}

// stoplist drops low-signal tokens before keyword lookup.
var stoplist = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "to": true, "in": true,
	"for": true, "and": true, "or": true, "is": true, "are": true, "on": true,
	"with": true, "by": true, "at": true, "from": true, "that": true, "this": true,
}

// ExtractKeywords lowercases text, splits on runs of non-alphanumeric
// characters, and drops stoplist words and empty tokens.
func ExtractKeywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" || stoplist[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Predict maps query text to a union of globs scoping the first indexing
// batch (spec.md §4.7). It returns DefaultGlobs when no keyword matches.
func Predict(queryText string) []string {
	keywords := ExtractKeywords(queryText)
	seen := make(map[string]bool)
	var globs []string
	for _, kw := range keywords {
		for _, g := range keywordGlobs[kw] {
			if !seen[g] {
				seen[g] = true
				globs = append(globs, g)
			}
		}
	}
	if len(globs) == 0 {
		return DefaultGlobs
	}
	return globs
}

// ShouldScope reports whether a repo with fileCount files warrants
// predictor scoping before its first index (spec.md §4.7's "> 1000
// files").
func ShouldScope(fileCount int) bool {
	return fileCount > LargeRepoFileCount
}
