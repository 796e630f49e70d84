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

// Package db declares the local document store's contract with the push
// replicator (spec.md §6, "Change-source interface"). The local store
// itself is out of scope for this module: only the interfaces are fixed
// here, plus a reference in-memory implementation under memstore used by
// tests.
package db

import (
	"context"

	"github.com/mobiledb/pushrepl/pkg/replicator"
)

// LoadOptions configures how RevisionLoader fetches a revision's body
// (spec.md §6).
type LoadOptions struct {
	// IncludeAttachments embeds attachment data inline.
	IncludeAttachments bool
	// IncludeRevs attaches the "_revisions" history to the body.
	IncludeRevs bool
	// BigAttachmentsFollow marks large attachments with "follows":true
	// instead of inlining them, so the uploader can stream them
	// separately via multipart (spec.md §4.5). The push replicator
	// passes false once multipart has been disabled for the session.
	BigAttachmentsFollow bool
}

// ChangeSource streams revisions from the local store in ascending
// sequence order (spec.md §6).
type ChangeSource interface {
	// ChangesSinceSequence returns every revision with Sequence > since,
	// honoring includeConflicts so that all conflicting leaf revisions
	// are replicated, and filtering at the source when filter is set
	// (spec.md §4.2).
	ChangesSinceSequence(
		ctx context.Context,
		since int64,
		includeConflicts bool,
		filter *replicator.Filter,
	) (*replicator.RevisionList, error)

	// Notifications returns a channel of change notifications for
	// continuous mode. The channel is closed when ctx is canceled.
	Notifications(ctx context.Context) (<-chan ChangeNotification, error)
}

// ChangeNotification is one entry from the local store's change stream
// (spec.md §6): an added revision plus where it came from, so the
// replicator can break push/pull cycles (spec.md §4.2).
type ChangeNotification struct {
	Revision *replicator.Revision
	Source   string
}

// RevisionLoader loads a revision's full body on demand (spec.md §6).
type RevisionLoader interface {
	LoadRevisionBody(ctx context.Context, rev *replicator.Revision, opts LoadOptions) error
}

// FilterCompiler resolves a named filter against the local store
// (spec.md §6, §3). Replication fails before producing any inbox batch
// if the name is set but unresolved (spec.md §4.2, §7).
type FilterCompiler interface {
	CompileFilterNamed(name string) (replicator.FilterFunc, error)
}

// AttachmentFile points at the bytes of a stubbed-out attachment so the
// multipart uploader can stream it (spec.md §6).
type AttachmentFile interface {
	Open() (ReadCloser, error)
	Size() int64
}

// ReadCloser is the minimal reader contract AttachmentFile.Open returns;
// declared locally so this package does not need to import io just for a
// type alias.
type ReadCloser interface {
	Read(p []byte) (n int, err error)
	Close() error
}

// AttachmentFileResolver maps an attachment dict entry to its backing
// file (spec.md §6 "fileForAttachmentDict").
type AttachmentFileResolver interface {
	FileForAttachmentDict(attachment map[string]interface{}) (AttachmentFile, error)
}

// Store is the full local-store contract the push replicator depends on.
type Store interface {
	ChangeSource
	RevisionLoader
	FilterCompiler
	AttachmentFileResolver
}
