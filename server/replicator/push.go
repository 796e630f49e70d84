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
	"context"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/mobiledb/pushrepl/pkg/errors"
	"github.com/mobiledb/pushrepl/pkg/logging"
	"github.com/mobiledb/pushrepl/pkg/replicator"
	"github.com/mobiledb/pushrepl/pkg/replicator/db"
	"github.com/mobiledb/pushrepl/pkg/replicator/transport"
)

// Pusher is the push replicator's lifecycle controller (spec.md §4.1).
// All of its mutable state — PendingSequences, the batcher, the upload
// queue gate, the state machine, and the error field — is touched only
// on a single executor goroutine (spec.md §5); every other method
// submits work onto that goroutine and waits for it to run.
type Pusher struct {
	cfg       *Config
	store     db.Store
	transport transport.Transport
	uploader  *transport.MultipartUploader
	metrics   *Metrics
	logger    logging.Logger
	sessionID string

	cmdCh chan func()
	done  chan struct{}

	rootCtx context.Context
	cancel  context.CancelFunc

	// Executor-owned. Never touched outside a function run on cmdCh.
	state             replicator.State
	err               error
	pending           *replicator.PendingSequences
	checkpoint        replicator.Checkpoint
	checkpointRev     string
	filter            *replicator.Filter
	batcher           *batcher
	dontSendMultipart bool
	asyncTasks        int
	changesTotal      int
	changesProcessed  int
	savingCheckpoint  bool
	checkpointTimer   *time.Timer
	checkpointGen     uint64
	scanInFlight      bool
	notifCancel       context.CancelFunc

	startOnce sync.Once
}

// NewPusher constructs a Pusher. sessionID should come from
// replicator.SessionID, derived by the (out-of-scope) replicator
// manager from the replication document.
func NewPusher(cfg *Config, store db.Store, t transport.Transport, sessionID string) *Pusher {
	return &Pusher{
		cfg:       cfg,
		store:     store,
		transport: t,
		uploader:  transport.NewMultipartUploader(t),
		logger:    logging.New("replicator", logging.NewField("session_id", sessionID)),
		sessionID: sessionID,
		state:     replicator.StateStopped,
		pending:   replicator.NewPendingSequences(),
		cmdCh:     make(chan func(), 64),
		done:      make(chan struct{}),
	}
}

// SetMetrics attaches a Metrics sink; optional, nil is a safe no-op.
func (p *Pusher) SetMetrics(m *Metrics) { p.metrics = m }

func (p *Pusher) execute(fn func()) {
	done := make(chan struct{})
	select {
	case p.cmdCh <- func() { fn(); close(done) }:
		<-done
	case <-p.done:
	}
}

// dispatch enqueues fn to run on the executor without waiting, used by
// background goroutines and the batcher's flush timer (spec.md §5).
func (p *Pusher) dispatch(fn func()) {
	select {
	case p.cmdCh <- fn:
	case <-p.done:
	}
}

func (p *Pusher) run() {
	for {
		select {
		case fn := <-p.cmdCh:
			fn()
		case <-p.done:
			return
		}
	}
}

// Start loads the checkpoint, optionally creates the target database,
// and transitions to Running (spec.md §4.1).
func (p *Pusher) Start(ctx context.Context) error {
	p.startOnce.Do(func() {
		p.rootCtx, p.cancel = context.WithCancel(ctx)
		go p.run()
	})

	p.execute(func() { p.state = replicator.StateStarting })

	filterFn, err := p.resolveFilter()
	if err != nil {
		p.execute(func() {
			p.err = err
			p.state = replicator.StateError
		})
		return err
	}

	if p.cfg.RemoteURL == "" {
		err := pkgerrors.ProtocolViolation("replicator config missing RemoteURL")
		p.execute(func() { p.err = err; p.state = replicator.StateError })
		return err
	}

	if p.cfg.CreateTarget {
		if err := ensureTarget(p.rootCtx, p.transport); err != nil {
			p.execute(func() { p.err = err; p.state = replicator.StateError })
			return err
		}
	}

	checkpoint, rev, err := loadCheckpoint(p.rootCtx, p.transport, p.sessionID)
	if err != nil {
		p.execute(func() { p.err = err; p.state = replicator.StateError })
		return err
	}

	p.execute(func() {
		p.checkpoint = checkpoint
		p.checkpointRev = rev
		p.filter = p.cfg.Filter(filterFn)
		p.batcher = newBatcher(p.cfg.InboxCapacity, p.cfg.InboxFlush, p.dispatch, p.onBatchReady)
		p.state = replicator.StateRunning
		if p.metrics != nil {
			p.metrics.ObserveStateTransition(p.state.String())
		}
	})

	p.startChangeSource()
	if p.cfg.Continuous {
		p.startNotifications()
	}

	return nil
}

func (p *Pusher) resolveFilter() (replicator.FilterFunc, error) {
	if p.cfg.FilterName == "" {
		return nil, nil
	}
	fn, err := p.store.CompileFilterNamed(p.cfg.FilterName)
	if err != nil {
		return nil, pkgerrors.FilterResolution(fmt.Sprintf("resolve filter %q: %v", p.cfg.FilterName, err))
	}
	return fn, nil
}

func (p *Pusher) startChangeSource() {
	p.execute(func() { p.scanInFlight = true })
	since := p.checkpointSeq()
	filter := p.currentFilter()

	go func() {
		list, err := scanChanges(p.rootCtx, p.store, since, p.cfg.IncludeConflicts, filter)
		p.dispatch(func() {
			p.scanInFlight = false
			if err != nil {
				p.fail(err)
				return
			}
			// The initial scan is chunked by ChangesBatch (spec.md §10.3's
			// checkpoint/scan batching): every ChangesBatch'th revision
			// forces a flush. The batcher's own capacity flush still
			// applies, so no group exceeds min(ChangesBatch, InboxCapacity).
			for i, rev := range list.Revisions() {
				p.changesTotal++
				p.pending.Add(rev.Sequence)
				p.batcher.Add(rev)
				if p.cfg.ChangesBatch > 0 && (i+1)%p.cfg.ChangesBatch == 0 {
					p.batcher.ForceFlush()
				}
			}
			if p.metrics != nil {
				p.metrics.AddChangesRead(list.Len())
				p.metrics.SetPendingSequences(p.pending.Len())
			}
			p.batcher.ForceFlush()
			p.checkIdle()
		})
	}()
}

func (p *Pusher) startNotifications() {
	ctx, cancel := context.WithCancel(p.rootCtx)
	p.execute(func() { p.notifCancel = cancel })

	ch, err := p.store.Notifications(ctx)
	if err != nil {
		p.dispatch(func() { p.fail(pkgerrors.LocalStore(fmt.Sprintf("subscribe to notifications: %v", err))) })
		return
	}

	go func() {
		for n := range ch {
			notif := n
			p.dispatch(func() {
				if p.state == replicator.StateOffline || p.state == replicator.StateStopped {
					return
				}
				if !admitsNotification(notif, p.cfg.RemoteURL, p.filter) {
					return
				}
				if p.state == replicator.StateIdle {
					p.state = replicator.StateRunning
					if p.metrics != nil {
						p.metrics.ObserveStateTransition(p.state.String())
					}
				}
				p.changesTotal++
				p.pending.Add(notif.Revision.Sequence)
				p.batcher.Add(notif.Revision)
			})
		}
	}()
}

func (p *Pusher) checkpointSeq() int64 {
	var seq int64
	p.execute(func() { seq = p.checkpoint.Seq() })
	return seq
}

func (p *Pusher) currentFilter() *replicator.Filter {
	var f *replicator.Filter
	p.execute(func() { f = p.filter })
	return f
}

// fail records the first fatal error and stops the replicator
// (spec.md §7 "Only the first fatal error is recorded").
func (p *Pusher) fail(err error) {
	if p.err != nil {
		p.logger.Error(fmt.Errorf("replicator: discarding subsequent error: %w", err))
		return
	}
	p.err = err
	p.state = replicator.StateError
	if p.metrics != nil {
		p.metrics.ObserveStateTransition(p.state.String())
	}
	p.stopLocked()
}

// Stop drops the change-notification subscription, cancels the batcher's
// flush timer, and persists the latest reachable checkpoint
// (spec.md §4.1). Requests already in flight are not canceled by Stop;
// Close cancels them. The executor keeps running afterward so
// observables and a later Retry remain reachable; call Close when the
// Pusher itself is being discarded.
func (p *Pusher) Stop() error {
	p.execute(func() { p.stopLocked() })
	return nil
}

// Close tears down the executor goroutine and cancels any in-flight
// requests. The Pusher must not be used afterward.
func (p *Pusher) Close() {
	p.execute(func() { p.stopLocked() })
	close(p.done)
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Pusher) stopLocked() {
	if p.state == replicator.StateStopped {
		return
	}
	if p.notifCancel != nil {
		p.notifCancel()
		p.notifCancel = nil
	}
	if p.batcher != nil {
		p.batcher.Stop()
	}
	if p.checkpointTimer != nil {
		p.checkpointTimer.Stop()
		p.checkpointTimer = nil
		p.fireCheckpointSave()
	}
	p.state = replicator.StateStopped
	if p.metrics != nil {
		p.metrics.ObserveStateTransition(p.state.String())
	}
}

// GoOffline suspends the change-notification subscription
// (spec.md §4.1).
func (p *Pusher) GoOffline() {
	p.execute(func() {
		if p.notifCancel != nil {
			p.notifCancel()
			p.notifCancel = nil
		}
		p.state = replicator.StateOffline
		if p.metrics != nil {
			p.metrics.ObserveStateTransition(p.state.String())
		}
	})
}

// GoOnline resumes a replicator suspended by GoOffline.
func (p *Pusher) GoOnline() {
	var wasOffline bool
	p.execute(func() {
		wasOffline = p.state == replicator.StateOffline
		if wasOffline {
			p.state = replicator.StateRunning
			if p.metrics != nil {
				p.metrics.ObserveStateTransition(p.state.String())
			}
		}
	})
	if wasOffline && p.cfg.Continuous {
		p.startNotifications()
	}
}

// Retry re-enters Running by re-requesting changes from the current
// checkpoint (spec.md §4.1). Revisions that previously failed remain in
// PendingSequences and are re-scanned from the checkpoint forward.
func (p *Pusher) Retry() {
	p.execute(func() {
		p.err = nil
		p.state = replicator.StateRunning
		if p.metrics != nil {
			p.metrics.ObserveStateTransition(p.state.String())
		}
	})
	p.startChangeSource()
}

// onBatchReady runs on the executor (the batcher only ever calls back
// from there). It hands the batch to the diff negotiator asynchronously.
func (p *Pusher) onBatchReady(batch *replicator.RevisionList) {
	if batch.Len() == 0 {
		return
	}
	p.asyncTasks++
	if p.metrics != nil {
		p.metrics.AddAsyncTask(1)
		p.metrics.AddRevsDiffCall()
		p.metrics.SetInboxDepth(0)
	}

	go func() {
		result, err := negotiateDiff(p.rootCtx, p.transport, batch)
		p.dispatch(func() {
			p.asyncTasks--
			if p.metrics != nil {
				p.metrics.AddAsyncTask(-1)
			}
			if err != nil {
				p.fail(err)
				return
			}
			p.applyDiffResult(batch, result)
			p.checkIdle()
		})
	}()
}

// applyDiffResult partitions batch per spec.md §4.4: revisions the
// remote already has are removed from PendingSequences immediately;
// the rest proceed to upload.
func (p *Pusher) applyDiffResult(batch *replicator.RevisionList, result replicator.DiffResult) {
	var need []*replicator.Revision
	for _, rev := range batch.Revisions() {
		if result.Missing(rev.DocID, rev.ID) {
			need = append(need, rev)
			continue
		}
		// The remote already has this revision: it's acknowledged
		// without an upload round-trip.
		p.changesProcessed++
		p.removeAndMaybeCheckpoint(rev.Sequence)
	}

	if len(need) > 0 {
		p.uploadRevisions(need, result)
	}
}

// removeAndMaybeCheckpoint implements spec.md §4.8: removes seq from
// PendingSequences and, if it was the tracked minimum, schedules a
// checkpoint save at the resulting candidate.
func (p *Pusher) removeAndMaybeCheckpoint(seq int64) {
	res := p.pending.Remove(seq)
	if p.metrics != nil {
		p.metrics.SetPendingSequences(p.pending.Len())
	}
	candidate, ok := p.pending.NextCheckpointCandidate(res)
	if !ok {
		return
	}
	p.scheduleCheckpointSave(replicator.CheckpointFromSeq(candidate))
}

// scheduleCheckpointSave records candidate as the checkpoint to persist
// and saves it CheckpointDelay after the first unsaved candidate arrived;
// newer candidates arriving in that window do not restart the timer and
// are carried by that one save (spec.md §4.8's async checkpoint save). A
// delay of zero saves immediately, matching a replicator with debouncing
// disabled.
func (p *Pusher) scheduleCheckpointSave(candidate replicator.Checkpoint) {
	if candidate.Seq() <= p.checkpoint.Seq() {
		return
	}
	p.checkpoint = candidate
	if p.metrics != nil {
		p.metrics.SetCheckpointSequence(candidate.Seq())
	}

	if p.cfg.CheckpointDelay <= 0 {
		p.fireCheckpointSave()
		return
	}
	if p.checkpointTimer != nil {
		return
	}
	p.checkpointGen++
	gen := p.checkpointGen
	p.checkpointTimer = time.AfterFunc(p.cfg.CheckpointDelay, func() {
		p.dispatch(func() { p.onCheckpointTimerFired(gen) })
	})
}

// onCheckpointTimerFired runs on the executor. gen guards against a stale
// timer firing after stopLocked already flushed and cleared it.
func (p *Pusher) onCheckpointTimerFired(gen uint64) {
	if gen != p.checkpointGen || p.checkpointTimer == nil {
		return
	}
	p.checkpointTimer = nil
	p.fireCheckpointSave()
}

func (p *Pusher) fireCheckpointSave() {
	if p.savingCheckpoint {
		return
	}
	p.savingCheckpoint = true

	rev := p.checkpointRev
	toSave := p.checkpoint
	go func() {
		newRev, err := saveCheckpoint(p.rootCtx, p.transport, p.sessionID, toSave, rev)
		p.dispatch(func() {
			p.savingCheckpoint = false
			if err != nil {
				p.logger.Error(fmt.Errorf("save checkpoint: %w", err))
				return
			}
			p.checkpointRev = newRev
			// A newer candidate may have arrived while this save was
			// in flight; re-issue if so.
			if p.checkpoint.Seq() > toSave.Seq() {
				p.scheduleCheckpointSave(p.checkpoint)
			}
		})
	}()
}

// checkIdle implements spec.md §4.1's Idle/Stopped detection: the
// inbox is empty, the async-task counter is zero, and (implicitly,
// since multipart is serialized through a single slot consumed by an
// async task) the upload queue is empty.
func (p *Pusher) checkIdle() {
	if p.state != replicator.StateRunning && p.state != replicator.StateRetrying {
		return
	}
	if p.scanInFlight || p.asyncTasks != 0 {
		return
	}
	if p.batcher != nil && p.batcher.Len() != 0 {
		return
	}

	p.state = replicator.StateIdle
	if p.metrics != nil {
		p.metrics.ObserveStateTransition(p.state.String())
	}

	if !p.cfg.Continuous {
		p.stopLocked()
	}
}

// ChangesTotal returns the number of revisions observed so far.
func (p *Pusher) ChangesTotal() int {
	var n int
	p.execute(func() { n = p.changesTotal })
	return n
}

// ChangesProcessed returns the number of revisions fully
// acknowledged (removed from PendingSequences) so far.
func (p *Pusher) ChangesProcessed() int {
	var n int
	p.execute(func() { n = p.changesProcessed })
	return n
}

// LastSequence returns the current checkpoint value. It is set as soon as
// a new checkpoint candidate is scheduled; its save to the remote may
// still be pending.
func (p *Pusher) LastSequence() replicator.Checkpoint {
	var cp replicator.Checkpoint
	p.execute(func() { cp = p.checkpoint })
	return cp
}

// State returns the current lifecycle state.
func (p *Pusher) State() replicator.State {
	var s replicator.State
	p.execute(func() { s = p.state })
	return s
}

// Err returns the first fatal error recorded, or nil.
func (p *Pusher) Err() error {
	var err error
	p.execute(func() { err = p.err })
	return err
}

// SessionID returns this replicator's stable session identifier.
func (p *Pusher) SessionID() string {
	return p.sessionID
}
