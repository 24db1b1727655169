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

package symbols

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_AddAndLookup(t *testing.T) {
	c := New()
	c.Add(Location{HandleID: "h1", FilePath: "a.go", Name: "Foo"})
	c.Add(Location{HandleID: "h2", FilePath: "b.go", Name: "Foo"})

	locs := c.Lookup("Foo")
	require.Len(t, locs, 2)
	assert.ElementsMatch(t, []string{"h1", "h2"}, []string{locs[0].HandleID, locs[1].HandleID})
}

func TestCache_NamesInFileDeduplicates(t *testing.T) {
	c := New()
	c.Add(Location{HandleID: "h1", FilePath: "a.go", Name: "Foo"})
	c.Add(Location{HandleID: "h2", FilePath: "a.go", Name: "Foo"})
	c.Add(Location{HandleID: "h3", FilePath: "a.go", Name: "Bar"})

	names := c.NamesInFile("a.go")
	assert.ElementsMatch(t, []string{"Foo", "Bar"}, names)
}

func TestCache_EvictFileRemovesOnlyThatFile(t *testing.T) {
	c := New()
	c.Add(Location{HandleID: "h1", FilePath: "a.go", Name: "Foo"})
	c.Add(Location{HandleID: "h2", FilePath: "b.go", Name: "Foo"})

	c.EvictFile("a.go")

	locs := c.Lookup("Foo")
	require.Len(t, locs, 1)
	assert.Equal(t, "b.go", locs[0].FilePath)
	assert.Empty(t, c.NamesInFile("a.go"))
}

func TestCache_EvictFileRemovesNameEntirelyWhenLastLocation(t *testing.T) {
	c := New()
	c.Add(Location{HandleID: "h1", FilePath: "a.go", Name: "Only"})
	c.EvictFile("a.go")
	assert.Empty(t, c.Lookup("Only"))
	assert.Equal(t, 0, c.Len())
}

func TestCache_ReplaceFileIsAtomicFromReaderPerspective(t *testing.T) {
	c := New()
	c.Add(Location{HandleID: "h1", FilePath: "a.go", Name: "Old"})

	c.ReplaceFile("a.go", []Location{{HandleID: "h2", FilePath: "a.go", Name: "New"}})

	assert.Empty(t, c.Lookup("Old"))
	locs := c.Lookup("New")
	require.Len(t, locs, 1)
	assert.Equal(t, "h2", locs[0].HandleID)
}

func TestCache_ConcurrentReadersDuringWrite(t *testing.T) {
	c := New()
	for i := 0; i < 100; i++ {
		c.Add(Location{HandleID: "seed", FilePath: "seed.go", Name: "Seed"})
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Lookup("Seed")
				c.NamesInFile("seed.go")
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			c.ReplaceFile("seed.go", []Location{{HandleID: "seed", FilePath: "seed.go", Name: "Seed"}})
		}
	}()
	wg.Wait()
}
