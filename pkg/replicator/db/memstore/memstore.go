/*
 * Copyright 2021 The Yorkie Authors. All rights reserved.
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

// Package memstore implements the db.Store interface with an in-memory
// database, for tests and as the CLI's only local store. It is not
// a production local store: the real one is out of scope for this module
// (spec.md §1).
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-memdb"

	"github.com/mobiledb/pushrepl/pkg/replicator"
	"github.com/mobiledb/pushrepl/pkg/replicator/db"
)

const tblRevisions = "revisions"

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tblRevisions: {
			Name: tblRevisions,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Key"},
				},
				"sequence": {
					Name:    "sequence",
					Unique:  true,
					Indexer: &memdb.IntFieldIndex{Field: "Sequence"},
				},
			},
		},
	},
}

// record wraps a replicator.Revision with the composite key memdb needs
// for its unique "id" index.
type record struct {
	Key      string
	Sequence int64
	Revision *replicator.Revision
}

// Store is an in-memory reference implementation of db.Store.
type Store struct {
	mu  sync.Mutex
	db  *memdb.MemDB
	seq int64

	subsMu sync.Mutex
	subs   []chan db.ChangeNotification

	filters map[string]replicator.FilterFunc
}

var _ db.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() (*Store, error) {
	memDB, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}

	return &Store{
		db:      memDB,
		filters: make(map[string]replicator.FilterFunc),
	}, nil
}

// RegisterFilter makes a named filter resolvable by CompileFilterNamed,
// mirroring the real store's filter-registration surface.
func (s *Store) RegisterFilter(name string, fn replicator.FilterFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters[name] = fn
}

// CompileFilterNamed implements db.FilterCompiler.
func (s *Store) CompileFilterNamed(name string) (replicator.FilterFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, ok := s.filters[name]
	if !ok {
		return nil, fmt.Errorf("compile filter %q: not found", name)
	}
	return fn, nil
}

// PutRevision assigns the revision the next local sequence and stores it,
// notifying any active Notifications() subscribers. Intended for tests
// building up a local store's history.
func (s *Store) PutRevision(rev *replicator.Revision, source string) *replicator.Revision {
	s.mu.Lock()
	s.seq++
	rev.Sequence = s.seq
	s.mu.Unlock()

	txn := s.db.Txn(true)
	if err := txn.Insert(tblRevisions, &record{
		Key:      rev.DocID + "\x00" + string(rev.ID),
		Sequence: rev.Sequence,
		Revision: rev,
	}); err != nil {
		txn.Abort()
		panic(err) // test-only helper; a schema violation here is a bug.
	}
	txn.Commit()

	s.publish(db.ChangeNotification{Revision: rev, Source: source})
	return rev
}

// ChangesSinceSequence implements db.ChangeSource.
func (s *Store) ChangesSinceSequence(
	_ context.Context,
	since int64,
	_ bool,
	filter *replicator.Filter,
) (*replicator.RevisionList, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tblRevisions, "sequence")
	if err != nil {
		return nil, fmt.Errorf("scan revisions: %w", err)
	}

	out := replicator.NewRevisionList()
	for raw := it.Next(); raw != nil; raw = it.Next() {
		rec := raw.(*record)
		if rec.Sequence <= since {
			continue
		}
		if filter != nil && !filter.Admits(rec.Revision) {
			continue
		}
		out.Add(rec.Revision)
	}

	return out, nil
}

// Notifications implements db.ChangeSource.
func (s *Store) Notifications(ctx context.Context) (<-chan db.ChangeNotification, error) {
	ch := make(chan db.ChangeNotification, 64)

	s.subsMu.Lock()
	s.subs = append(s.subs, ch)
	s.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		for i, sub := range s.subs {
			if sub == ch {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

func (s *Store) publish(n db.ChangeNotification) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, sub := range s.subs {
		select {
		case sub <- n:
		default:
		}
	}
}

// LoadRevisionBody implements db.RevisionLoader. The in-memory store
// already holds the full body, so this only trims it according to opts.
func (s *Store) LoadRevisionBody(_ context.Context, rev *replicator.Revision, opts db.LoadOptions) error {
	if !opts.IncludeAttachments {
		delete(rev.Properties, "_attachments")
	}
	if !opts.IncludeRevs {
		rev.History = replicator.RevisionHistory{}
	}
	return nil
}

// FileForAttachmentDict implements db.AttachmentFileResolver. The
// in-memory store keeps no attachment bytes on disk, so this always
// fails; tests that need multipart upload construct an AttachmentFile
// directly.
func (s *Store) FileForAttachmentDict(map[string]interface{}) (db.AttachmentFile, error) {
	return nil, fmt.Errorf("memstore: no backing file for attachment")
}
