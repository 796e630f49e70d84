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

// Package replicator holds the push replicator's pure domain types:
// revisions, the pending-sequence tracker, checkpoints, filters and the
// diff/ancestor algorithms. It has no network or storage dependency; those
// live in the db and transport subpackages and are wired together by
// server/replicator.
package replicator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// RevID identifies one revision of a document, in the form "<gen>-<hash>".
type RevID string

// Generation returns the numeric prefix of the revision ID, or 0 if it is
// malformed.
func (r RevID) Generation() int {
	idx := strings.IndexByte(string(r), '-')
	if idx <= 0 {
		return 0
	}
	gen, err := strconv.Atoi(string(r)[:idx])
	if err != nil {
		return 0
	}
	return gen
}

// RevisionHistory is the "_revisions" object of a document body: the
// revision's generation history as a {start, ids} pair, most recent first.
type RevisionHistory struct {
	Start int      `json:"start"`
	IDs   []string `json:"ids"`
}

// FullHistory expands {start, ids} into the ["<gen>-<id>", ...] form used
// by findCommonAncestor, most recent first.
func (h RevisionHistory) FullHistory() []RevID {
	history := make([]RevID, len(h.IDs))
	for i, id := range h.IDs {
		history[i] = RevID(fmt.Sprintf("%d-%s", h.Start-i, id))
	}
	return history
}

// Revision is an immutable snapshot of a document identified by
// (DocID, RevID), carrying the local sequence it was assigned and its
// property map (spec.md §3).
type Revision struct {
	DocID      string
	ID         RevID
	Sequence   int64
	Deleted    bool
	Properties map[string]interface{}
	History    RevisionHistory

	// Source identifies where a revision came from in continuous mode, so
	// the push replicator can break cycles with a pull replicator that
	// wrote it (spec.md §4.2).
	Source string
}

// Attachments returns the "_attachments" entry of Properties, or nil.
// Entries are map[string]interface{} rather than a named struct because
// Properties is itself the JSON-decoded document body.
func (r *Revision) Attachments() map[string]interface{} {
	raw, ok := r.Properties["_attachments"]
	if !ok {
		return nil
	}
	atts, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	return atts
}

// HasAttachments reports whether this revision carries any attachments.
func (r *Revision) HasAttachments() bool {
	return len(r.Attachments()) > 0
}

// RevisionList is an ordered batch of revisions with docID/revID
// uniqueness used as the unit the inbox batcher hands to the diff
// negotiator (spec.md §3).
type RevisionList struct {
	revs []*Revision
	seen map[string]struct{}
}

// NewRevisionList creates an empty RevisionList.
func NewRevisionList() *RevisionList {
	return &RevisionList{seen: make(map[string]struct{})}
}

// Add appends rev to the list unless its (DocID, ID) pair is already
// present.
func (l *RevisionList) Add(rev *Revision) bool {
	key := revKey(rev.DocID, rev.ID)
	if _, ok := l.seen[key]; ok {
		return false
	}
	l.seen[key] = struct{}{}
	l.revs = append(l.revs, rev)
	return true
}

// Len returns the number of revisions in the list.
func (l *RevisionList) Len() int {
	return len(l.revs)
}

// Revisions returns the revisions in the order they were added.
func (l *RevisionList) Revisions() []*Revision {
	return l.revs
}

// ByDocID groups the revisions in the list by docID, preserving the
// per-doc order they were added in. Used to build the _revs_diff request.
func (l *RevisionList) ByDocID() map[string][]*Revision {
	grouped := make(map[string][]*Revision)
	for _, rev := range l.revs {
		grouped[rev.DocID] = append(grouped[rev.DocID], rev)
	}
	return grouped
}

func revKey(docID string, revID RevID) string {
	return docID + "\x00" + string(revID)
}

// SortByDocID returns a copy of revs sorted by (DocID, ID), used where
// deterministic ordering matters (e.g. bulk request bodies in tests).
func SortByDocID(revs []*Revision) []*Revision {
	sorted := make([]*Revision, len(revs))
	copy(sorted, revs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].DocID != sorted[j].DocID {
			return sorted[i].DocID < sorted[j].DocID
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}
