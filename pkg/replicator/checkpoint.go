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

import (
	"crypto/sha1" //nolint:gosec // CouchDB-family replication ID algorithm, not a security boundary.
	"fmt"
	"sort"
	"strconv"
)

// Checkpoint is the local-store sequence representation persisted at the
// remote under the session key (spec.md §3). It is just a string: the
// local store, not the replicator, knows how to compare and format its
// own sequence numbers, but in this module sequences are int64 so the
// decimal string representation is used directly.
type Checkpoint string

// NoCheckpoint is the zero-value checkpoint: nothing has been delivered.
const NoCheckpoint Checkpoint = ""

// CheckpointFromSeq renders a local sequence as a Checkpoint string.
func CheckpointFromSeq(seq int64) Checkpoint {
	return Checkpoint(strconv.FormatInt(seq, 10))
}

// Seq parses the checkpoint back into a sequence number. Returns 0 for
// NoCheckpoint or a malformed value.
func (c Checkpoint) Seq() int64 {
	seq, err := strconv.ParseInt(string(c), 10, 64)
	if err != nil {
		return 0
	}
	return seq
}

// SessionID derives the stable session key CouchDB-family replicators use
// to address their checkpoint document under /_local/<sessionID>
// (spec.md §3, §6). It hashes (localDBUUID, remoteURL, push, filter,
// filterParams, docIDs) with SHA-1, the algorithm every CouchDB-compatible
// replicator uses so two peers computing it independently agree on the
// same key.
func SessionID(localDBUUID, remoteURL string, push bool, filterName string, filterParams map[string]string, docIDs []string) string {
	h := sha1.New() //nolint:gosec
	fmt.Fprintf(h, "%s\x00%s\x00%t\x00%s", localDBUUID, remoteURL, push, filterName)

	keys := make([]string, 0, len(filterParams))
	for k := range filterParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "\x00%s=%s", k, filterParams[k])
	}

	sortedDocIDs := make([]string, len(docIDs))
	copy(sortedDocIDs, docIDs)
	sort.Strings(sortedDocIDs)
	for _, id := range sortedDocIDs {
		fmt.Fprintf(h, "\x00%s", id)
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}
