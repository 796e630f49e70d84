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

func TestCheckpointFromSeq(t *testing.T) {
	cp := replicator.CheckpointFromSeq(3)
	assert.Equal(t, replicator.Checkpoint("3"), cp)
	assert.Equal(t, int64(3), cp.Seq())
}

func TestNoCheckpointSeqIsZero(t *testing.T) {
	assert.Equal(t, int64(0), replicator.NoCheckpoint.Seq())
}

func TestSessionID_Deterministic(t *testing.T) {
	id1 := replicator.SessionID("uuid-1", "https://example.com/db", true, "filter", map[string]string{"a": "1"}, []string{"doc1", "doc2"})
	id2 := replicator.SessionID("uuid-1", "https://example.com/db", true, "filter", map[string]string{"a": "1"}, []string{"doc2", "doc1"})
	assert.Equal(t, id1, id2, "docID order must not affect the session key")
	assert.Len(t, id1, 40) // hex-encoded SHA-1
}

func TestSessionID_DiffersByInput(t *testing.T) {
	base := replicator.SessionID("uuid-1", "https://example.com/db", true, "", nil, nil)
	pull := replicator.SessionID("uuid-1", "https://example.com/db", false, "", nil, nil)
	otherFilter := replicator.SessionID("uuid-1", "https://example.com/db", true, "other", nil, nil)

	assert.NotEqual(t, base, pull)
	assert.NotEqual(t, base, otherFilter)
}
