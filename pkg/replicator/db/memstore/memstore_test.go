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

package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobiledb/pushrepl/pkg/replicator"
	"github.com/mobiledb/pushrepl/pkg/replicator/db"
	"github.com/mobiledb/pushrepl/pkg/replicator/db/memstore"
)

func TestStore_ChangesSinceSequence(t *testing.T) {
	s, err := memstore.New()
	require.NoError(t, err)

	s.PutRevision(&replicator.Revision{DocID: "doc1", ID: "1-a"}, "local")
	s.PutRevision(&replicator.Revision{DocID: "doc2", ID: "1-a"}, "local")
	s.PutRevision(&replicator.Revision{DocID: "doc3", ID: "1-a"}, "local")

	list, err := s.ChangesSinceSequence(context.Background(), 1, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Len())

	all, err := s.ChangesSinceSequence(context.Background(), 0, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, all.Len())
}

func TestStore_ChangesSinceSequence_Filtered(t *testing.T) {
	s, err := memstore.New()
	require.NoError(t, err)

	s.PutRevision(&replicator.Revision{DocID: "doc1", ID: "1-a", Properties: map[string]interface{}{"type": "keep"}}, "local")
	s.PutRevision(&replicator.Revision{DocID: "doc2", ID: "1-a", Properties: map[string]interface{}{"type": "skip"}}, "local")

	filter := &replicator.Filter{
		Name: "byType",
		Func: func(rev *replicator.Revision, _ map[string]string) bool {
			return rev.Properties["type"] == "keep"
		},
	}

	list, err := s.ChangesSinceSequence(context.Background(), 0, false, filter)
	require.NoError(t, err)
	require.Equal(t, 1, list.Len())
	assert.Equal(t, "doc1", list.Revisions()[0].DocID)
}

func TestStore_CompileFilterNamed(t *testing.T) {
	s, err := memstore.New()
	require.NoError(t, err)

	_, err = s.CompileFilterNamed("missing")
	assert.Error(t, err)

	s.RegisterFilter("always", func(*replicator.Revision, map[string]string) bool { return true })
	fn, err := s.CompileFilterNamed("always")
	require.NoError(t, err)
	assert.True(t, fn(&replicator.Revision{}, nil))
}

func TestStore_Notifications_ClosesOnCancel(t *testing.T) {
	s, err := memstore.New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := s.Notifications(ctx)
	require.NoError(t, err)

	s.PutRevision(&replicator.Revision{DocID: "doc1", ID: "1-a"}, "local")
	notif := <-ch
	assert.Equal(t, "doc1", notif.Revision.DocID)

	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestStore_LoadRevisionBody_TrimsAccordingToOptions(t *testing.T) {
	s, err := memstore.New()
	require.NoError(t, err)

	rev := &replicator.Revision{
		DocID:      "doc1",
		ID:         "1-a",
		Properties: map[string]interface{}{"_attachments": map[string]interface{}{"f.txt": struct{}{}}},
		History:    replicator.RevisionHistory{Start: 1, IDs: []string{"a"}},
	}

	err = s.LoadRevisionBody(context.Background(), rev, db.LoadOptions{})
	require.NoError(t, err)
	assert.NotContains(t, rev.Properties, "_attachments")
	assert.Equal(t, replicator.RevisionHistory{}, rev.History)
}
