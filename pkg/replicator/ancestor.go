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

package replicator

// FindCommonAncestor implements spec.md §4.7: given rev's "_revisions"
// history and a list of candidate revIDs the remote reported as
// possible_ancestors, it returns the generation number of the first
// (most recent) entry in rev's full history that also appears among the
// candidates, or 0 if none do. That generation is the revpos boundary
// below which attachments can be stubbed, because the remote is known to
// already have that ancestor.
func FindCommonAncestor(rev *Revision, candidates []RevID) int {
	if len(candidates) == 0 {
		return 0
	}

	candidateSet := make(map[RevID]struct{}, len(candidates))
	for _, c := range candidates {
		candidateSet[c] = struct{}{}
	}

	for _, id := range rev.History.FullHistory() {
		if _, ok := candidateSet[id]; ok {
			return id.Generation()
		}
	}

	return 0
}
