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
	"time"

	"github.com/mobiledb/pushrepl/pkg/replicator"
)

// batcher coalesces revisions into fixed-capacity or time-bounded
// batches to amortize the round-trip to _revs_diff (spec.md §4.3). It
// is driven entirely from the replicator's single executor goroutine:
// Add and the timer callback are never called concurrently with each
// other.
type batcher struct {
	capacity int
	flush    time.Duration

	pending *replicator.RevisionList
	timer   *time.Timer
	gen     uint64

	onFlush func(*replicator.RevisionList)
	// dispatch redispatches a timer callback onto the replicator's
	// single executor (spec.md §5); the timer itself fires on its own
	// goroutine.
	dispatch func(func())
}

func newBatcher(capacity int, flush time.Duration, dispatch func(func()), onFlush func(*replicator.RevisionList)) *batcher {
	return &batcher{
		capacity: capacity,
		flush:    flush,
		pending:  replicator.NewRevisionList(),
		onFlush:  onFlush,
		dispatch: dispatch,
	}
}

// Add appends rev to the current batch, flushing immediately if it
// reaches capacity.
func (b *batcher) Add(rev *replicator.Revision) {
	b.pending.Add(rev)

	if b.pending.Len() >= b.capacity {
		b.flushNow()
		return
	}

	if b.timer == nil {
		b.gen++
		gen := b.gen
		b.timer = time.AfterFunc(b.flush, func() {
			b.dispatch(func() { b.onTimerFired(gen) })
		})
	}
}

// ForceFlush flushes whatever is pending regardless of capacity or
// timer state, used when the change source exhausts its initial scan
// (spec.md §4.3).
func (b *batcher) ForceFlush() {
	if b.pending.Len() == 0 {
		return
	}
	b.flushNow()
}

// Len reports the number of revisions currently buffered.
func (b *batcher) Len() int {
	return b.pending.Len()
}

// Stop cancels any pending flush timer without flushing, used during
// stop() (spec.md §4.1).
func (b *batcher) Stop() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *batcher) flushNow() {
	b.Stop()
	batch := b.pending
	b.pending = replicator.NewRevisionList()
	b.onFlush(batch)
}

// onTimerFired runs on the replicator's executor (via dispatch). gen
// guards against a stale timer firing after a flush or Stop() and a
// later Add already armed a newer one.
func (b *batcher) onTimerFired(gen uint64) {
	if gen != b.gen || b.timer == nil {
		return
	}
	b.timer = nil
	b.flushNow()
}
