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

// DocDiff is one document's entry in a _revs_diff response: the revisions
// the remote lacks, and revisions it has that might be ancestors, used to
// stub attachments (spec.md §3).
type DocDiff struct {
	Missing           []RevID
	PossibleAncestors []RevID
}

// DiffResult is the full _revs_diff response, keyed by docID.
type DiffResult map[string]DocDiff

// Missing reports whether the remote is missing the given revision of
// docID, per spec.md §4.4: a revision is "already present remotely"
// unless both the docID is present in the response AND the revID is
// listed in its "missing" array.
func (d DiffResult) Missing(docID string, revID RevID) bool {
	entry, ok := d[docID]
	if !ok {
		return false
	}
	for _, id := range entry.Missing {
		if id == revID {
			return true
		}
	}
	return false
}
