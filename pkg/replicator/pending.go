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

import "sort"

// PendingSequences is a sorted set of local sequence numbers currently in
// flight: queued for diff, queued for upload, or uploading (spec.md §3).
// It is not safe for concurrent use; the replicator's single-threaded
// executor owns it exclusively (spec.md §5).
type PendingSequences struct {
	seqs   map[int64]struct{}
	sorted []int64 // lazily rebuilt; nil means dirty
	maxSeq int64
}

// NewPendingSequences creates an empty tracker.
func NewPendingSequences() *PendingSequences {
	return &PendingSequences{seqs: make(map[int64]struct{})}
}

// Add inserts seq into the set and advances MaxPendingSequence.
func (p *PendingSequences) Add(seq int64) {
	if _, ok := p.seqs[seq]; ok {
		return
	}
	p.seqs[seq] = struct{}{}
	p.sorted = nil
	if seq > p.maxSeq {
		p.maxSeq = seq
	}
}

// removeResult reports what Remove observed about the sequence it removed.
type removeResult struct {
	// wasTracked reports whether seq was actually present in the set.
	// Per spec.md §9's open question, removing an untracked sequence
	// must never advance the checkpoint.
	wasTracked bool

	// wasMinimum reports whether seq was the lowest tracked sequence at
	// the time of removal.
	wasMinimum bool
}

// Remove deletes seq from the set, reporting whether it was tracked and
// whether it was the current minimum (spec.md §4.8).
func (p *PendingSequences) Remove(seq int64) removeResult {
	if _, ok := p.seqs[seq]; !ok {
		return removeResult{wasTracked: false}
	}

	wasMinimum := p.Len() > 0 && seq == p.Min()

	delete(p.seqs, seq)
	p.sorted = nil

	return removeResult{wasTracked: true, wasMinimum: wasMinimum}
}

// Len returns the number of sequences currently tracked.
func (p *PendingSequences) Len() int {
	return len(p.seqs)
}

// Min returns the lowest tracked sequence. Callers must check Len() > 0.
func (p *PendingSequences) Min() int64 {
	p.ensureSorted()
	return p.sorted[0]
}

// MaxPendingSequence returns the highest sequence ever added, even after
// it has since been removed (spec.md §3).
func (p *PendingSequences) MaxPendingSequence() int64 {
	return p.maxSeq
}

// Contains reports whether seq is currently tracked.
func (p *PendingSequences) Contains(seq int64) bool {
	_, ok := p.seqs[seq]
	return ok
}

// Sequences returns the tracked sequences in ascending order.
func (p *PendingSequences) Sequences() []int64 {
	p.ensureSorted()
	out := make([]int64, len(p.sorted))
	copy(out, p.sorted)
	return out
}

func (p *PendingSequences) ensureSorted() {
	if p.sorted != nil {
		return
	}
	p.sorted = make([]int64, 0, len(p.seqs))
	for seq := range p.seqs {
		p.sorted = append(p.sorted, seq)
	}
	sort.Slice(p.sorted, func(i, j int) bool { return p.sorted[i] < p.sorted[j] })
}

// NextCheckpointCandidate computes the candidate checkpoint value after
// removing seq, per the algorithm in spec.md §4.8:
//
//   - if seq was not tracked, never advance (returns ok=false);
//   - if seq was not the minimum, the prefix is unaffected (ok=false);
//   - if seq was the minimum and sequences remain, candidate is newMin-1;
//   - if seq was the minimum and none remain, candidate is MaxPendingSequence.
//
// Remove must have already been called with this seq before calling this.
func (p *PendingSequences) NextCheckpointCandidate(removed removeResult) (int64, bool) {
	if !removed.wasTracked || !removed.wasMinimum {
		return 0, false
	}

	if p.Len() > 0 {
		return p.Min() - 1, true
	}

	return p.maxSeq, true
}
