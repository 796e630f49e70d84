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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobiledb/pushrepl/pkg/replicator"
)

// immediateDispatch runs fn synchronously, standing in for the executor
// loop the real Pusher drives the batcher from.
func immediateDispatch(fn func()) { fn() }

func TestBatcher_FlushesAtCapacity(t *testing.T) {
	var flushed []*replicator.RevisionList
	b := newBatcher(2, time.Hour, immediateDispatch, func(batch *replicator.RevisionList) {
		flushed = append(flushed, batch)
	})

	b.Add(&replicator.Revision{DocID: "doc1", ID: "1-a"})
	assert.Equal(t, 1, b.Len())
	assert.Empty(t, flushed)

	b.Add(&replicator.Revision{DocID: "doc2", ID: "1-a"})
	require.Len(t, flushed, 1)
	assert.Equal(t, 2, flushed[0].Len())
	assert.Equal(t, 0, b.Len())
}

func TestBatcher_ForceFlushDrainsPartialBatch(t *testing.T) {
	var flushed []*replicator.RevisionList
	b := newBatcher(10, time.Hour, immediateDispatch, func(batch *replicator.RevisionList) {
		flushed = append(flushed, batch)
	})

	b.Add(&replicator.Revision{DocID: "doc1", ID: "1-a"})
	b.ForceFlush()
	require.Len(t, flushed, 1)
	assert.Equal(t, 1, flushed[0].Len())

	// ForceFlush on an empty batcher is a no-op.
	b.ForceFlush()
	assert.Len(t, flushed, 1)
}

func TestBatcher_TimerFlushesAfterDelay(t *testing.T) {
	flushedCh := make(chan *replicator.RevisionList, 1)
	dispatch := func(fn func()) { fn() }
	b := newBatcher(10, 20*time.Millisecond, dispatch, func(batch *replicator.RevisionList) {
		flushedCh <- batch
	})

	b.Add(&replicator.Revision{DocID: "doc1", ID: "1-a"})

	select {
	case batch := <-flushedCh:
		assert.Equal(t, 1, batch.Len())
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestBatcher_StopCancelsPendingTimerWithoutFlushing(t *testing.T) {
	var flushed int
	b := newBatcher(10, 20*time.Millisecond, immediateDispatch, func(*replicator.RevisionList) {
		flushed++
	})

	b.Add(&replicator.Revision{DocID: "doc1", ID: "1-a"})
	b.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, flushed)
	assert.Equal(t, 1, b.Len())
}

func TestBatcher_StaleTimerGenerationIsIgnoredAfterForceFlush(t *testing.T) {
	var flushed []*replicator.RevisionList
	b := newBatcher(10, 10*time.Millisecond, immediateDispatch, func(batch *replicator.RevisionList) {
		flushed = append(flushed, batch)
	})

	b.Add(&replicator.Revision{DocID: "doc1", ID: "1-a"})
	b.ForceFlush()
	require.Len(t, flushed, 1)

	b.Add(&replicator.Revision{DocID: "doc2", ID: "1-a"})
	time.Sleep(40 * time.Millisecond)
	require.Len(t, flushed, 2)
	assert.Equal(t, 1, flushed[1].Len())
}
