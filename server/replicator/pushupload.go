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
	"fmt"
	"net/http"

	pkgerrors "github.com/mobiledb/pushrepl/pkg/errors"
	"github.com/mobiledb/pushrepl/pkg/replicator"
	"github.com/mobiledb/pushrepl/pkg/replicator/db"
)

// uploadRevisions loads the body of every revision the remote lacks,
// stubs attachments against the diff's possible_ancestors, and routes
// each one to either the bulk batch or the multipart path (spec.md
// §4.5). It runs on the executor but performs its own network I/O on
// background goroutines, rejoining the executor via dispatch.
func (p *Pusher) uploadRevisions(need []*replicator.Revision, result replicator.DiffResult) {
	p.asyncTasks++
	if p.metrics != nil {
		p.metrics.AddAsyncTask(1)
	}

	go func() {
		var bulkBatch []*replicator.Revision
		var multipartFailures []error

		for _, rev := range need {
			diff := result[rev.DocID]

			opts := db.LoadOptions{
				IncludeAttachments:   true,
				IncludeRevs:          true,
				BigAttachmentsFollow: !p.snapshotDontSendMultipart(),
			}
			if err := p.store.LoadRevisionBody(p.rootCtx, rev, opts); err != nil {
				multipartFailures = append(multipartFailures, pkgerrors.LocalStore(
					fmt.Sprintf("load revision body for %s/%s: %v", rev.DocID, rev.ID, err)))
				continue
			}

			properties := rev.Properties
			if rev.HasAttachments() {
				ancestorGen := replicator.FindCommonAncestor(rev, diff.PossibleAncestors)
				properties = stubAttachments(properties, ancestorGen)
			}

			if hasFollowingAttachments(properties) && !p.snapshotDontSendMultipart() {
				p.uploadMultipart(rev, properties)
				continue
			}

			rev.Properties = properties
			bulkBatch = append(bulkBatch, rev)
		}

		p.dispatch(func() {
			p.asyncTasks--
			if p.metrics != nil {
				p.metrics.AddAsyncTask(-1)
			}
			for _, err := range multipartFailures {
				// Local-store errors skip the revision but keep its
				// sequence pending for retry (spec.md §7).
				p.logger.Error(err)
			}
			if len(bulkBatch) > 0 {
				p.uploadBulk(bulkBatch)
			}
			p.checkIdle()
		})
	}()
}

func (p *Pusher) snapshotDontSendMultipart() bool {
	var v bool
	p.execute(func() { v = p.dontSendMultipart })
	return v
}

// uploadBulk sends revs via _bulk_docs and reconciles PendingSequences
// per response item (spec.md §4.5).
func (p *Pusher) uploadBulk(revs []*replicator.Revision) {
	p.asyncTasks++
	if p.metrics != nil {
		p.metrics.AddAsyncTask(1)
	}

	go func() {
		outcomes, err := bulkUpload(p.rootCtx, p.transport, revs)
		p.dispatch(func() {
			p.asyncTasks--
			if p.metrics != nil {
				p.metrics.AddAsyncTask(-1)
			}
			if err != nil {
				p.fail(err)
				return
			}
			if p.metrics != nil {
				p.metrics.AddBulkDocsSent(len(revs))
			}

			byDocID := make(map[string]*replicator.Revision, len(revs))
			for _, rev := range revs {
				byDocID[rev.DocID] = rev
			}

			for _, outcome := range outcomes {
				rev, ok := byDocID[outcome.docID]
				if !ok {
					continue
				}
				if outcome.ok {
					p.changesProcessed++
					p.removeAndMaybeCheckpoint(rev.Sequence)
					continue
				}
				if p.metrics != nil {
					p.metrics.AddDocFailed(outcome.status)
				}
				if outcome.fatal {
					p.fail(outcome.err)
					return
				}
				// 401/403/409: logged, not propagated; sequence stays
				// pending for a future retry (spec.md §7). The error
				// carries doc_id/rev_id metadata for the log line.
				p.logger.Errorw(outcome.err.Error(), "metadata", pkgerrors.Metadata(outcome.err))
			}
			p.checkIdle()
		})
	}()
}

// uploadMultipart streams rev through the single-slot multipart queue,
// falling back to an inlined-JSON PUT permanently for the session if
// the remote responds 415 (spec.md §4.6).
func (p *Pusher) uploadMultipart(rev *replicator.Revision, properties map[string]interface{}) {
	p.dispatch(func() {
		p.asyncTasks++
		if p.metrics != nil {
			p.metrics.AddAsyncTask(1)
		}
	})

	attachments, _ := properties["_attachments"].(map[string]interface{})
	source := &attachmentSourceFromStore{resolver: p.store, attachments: attachments}

	resp, err := p.uploader.Upload(p.rootCtx, rev.DocID, properties, source)

	p.dispatch(func() {
		p.asyncTasks--
		if p.metrics != nil {
			p.metrics.AddAsyncTask(-1)
		}

		if err != nil {
			p.fail(pkgerrors.Transport(fmt.Sprintf("multipart upload %s: %v", rev.DocID, err)))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnsupportedMediaType {
			p.dontSendMultipart = true
			p.logger.Error(fmt.Errorf("multipart rejected for %s, falling back to inlined JSON for the session", rev.DocID))
			rev.Properties = properties
			p.uploadInlinedFallback(rev)
			return
		}

		if resp.StatusCode >= 400 {
			if p.metrics != nil {
				p.metrics.AddDocFailed(resp.StatusCode)
			}
			p.logger.Error(fmt.Errorf("multipart upload %s: status %d", rev.DocID, resp.StatusCode))
			p.checkIdle()
			return
		}

		if p.metrics != nil {
			p.metrics.AddMultipartSent()
		}
		p.changesProcessed++
		p.removeAndMaybeCheckpoint(rev.Sequence)
		p.checkIdle()
	})
}

// uploadInlinedFallback re-uploads rev as a single JSON PUT with
// attachments inlined as base64, per spec.md §4.6's 415 fallback path.
func (p *Pusher) uploadInlinedFallback(rev *replicator.Revision) {
	p.asyncTasks++
	if p.metrics != nil {
		p.metrics.AddAsyncTask(1)
	}

	inlined, err := inlineAttachments(rev.Properties, p.store)
	if err != nil {
		p.asyncTasks--
		if p.metrics != nil {
			p.metrics.AddAsyncTask(-1)
		}
		p.logger.Error(fmt.Errorf("inline attachments for %s: %w", rev.DocID, err))
		p.checkIdle()
		return
	}

	go func() {
		outcome, err := putDocJSON(p.rootCtx, p.transport, &replicator.Revision{
			DocID:      rev.DocID,
			ID:         rev.ID,
			Sequence:   rev.Sequence,
			Properties: inlined,
		})
		p.dispatch(func() {
			p.asyncTasks--
			if p.metrics != nil {
				p.metrics.AddAsyncTask(-1)
			}
			if err != nil {
				p.fail(err)
				return
			}
			if outcome.ok {
				p.changesProcessed++
				p.removeAndMaybeCheckpoint(rev.Sequence)
				p.checkIdle()
				return
			}
			if p.metrics != nil {
				p.metrics.AddDocFailed(outcome.status)
			}
			if outcome.fatal {
				p.fail(outcome.err)
				return
			}
			p.logger.Errorw(outcome.err.Error(), "metadata", pkgerrors.Metadata(outcome.err))
			p.checkIdle()
		})
	}()
}
