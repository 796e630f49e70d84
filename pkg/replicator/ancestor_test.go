/*
 * Copyright 2024 The Yorkie Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package replicator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mobiledb/pushrepl/pkg/replicator"
)

// rev with history [2-second, 1-first], per spec.md §8.
func ancestorTestRev() *replicator.Revision {
	return &replicator.Revision{
		DocID: "doc1",
		ID:    "2-second",
		History: replicator.RevisionHistory{
			Start: 2,
			IDs:   []string{"second", "first"},
		},
	}
}

func TestFindCommonAncestor_NoCandidates(t *testing.T) {
	assert.Equal(t, 0, replicator.FindCommonAncestor(ancestorTestRev(), nil))
}

func TestFindCommonAncestor_NoMatch(t *testing.T) {
	rev := ancestorTestRev()
	got := replicator.FindCommonAncestor(rev, []replicator.RevID{"3-noway", "1-nope"})
	assert.Equal(t, 0, got)
}

func TestFindCommonAncestor_MatchOlder(t *testing.T) {
	rev := ancestorTestRev()
	got := replicator.FindCommonAncestor(rev, []replicator.RevID{"3-noway", "1-first"})
	assert.Equal(t, 1, got)
}

func TestFindCommonAncestor_PrefersMoreRecentGeneration(t *testing.T) {
	rev := ancestorTestRev()
	got := replicator.FindCommonAncestor(rev, []replicator.RevID{"3-noway", "2-second", "1-first"})
	assert.Equal(t, 2, got)
}

func TestRevisionHistory_FullHistory(t *testing.T) {
	h := replicator.RevisionHistory{Start: 3, IDs: []string{"c", "b", "a"}}
	got := h.FullHistory()
	assert.Equal(t, []replicator.RevID{"3-c", "2-b", "1-a"}, got)
}
