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

package predictor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractKeywords_DropsStoplistAndLowercases(t *testing.T) {
	got := ExtractKeywords("Where is the Authentication for Login?")
	assert.Equal(t, []string{"where", "authentication", "login"}, got)
}

func TestPredict_MatchesKeywordToGlobs(t *testing.T) {
	// Scenario S5: a query for "authentication" against a large repo.
	globs := Predict("authentication")
	assert.ElementsMatch(t, []string{"**/auth/**", "**/login/**"}, globs)
}

func TestPredict_UnionsMultipleKeywordMatches(t *testing.T) {
	globs := Predict("payment and billing api")
	assert.Contains(t, globs, "**/payment/**")
	assert.Contains(t, globs, "**/billing/**")
	assert.Contains(t, globs, "**/api/**")
	assert.Contains(t, globs, "**/handlers/**")
	assert.Contains(t, globs, "**/routes/**")
}

func TestPredict_FallsBackToDefaultGlobWhenNoKeywordMatches(t *testing.T) {
	assert.Equal(t, DefaultGlobs, Predict("zzqxpq nonsense term"))
}

func TestShouldScope(t *testing.T) {
	assert.False(t, ShouldScope(1000))
	assert.False(t, ShouldScope(500))
	assert.True(t, ShouldScope(1001))
	assert.True(t, ShouldScope(7600))
}
