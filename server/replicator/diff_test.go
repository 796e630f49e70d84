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
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobiledb/pushrepl/pkg/replicator"
	"github.com/mobiledb/pushrepl/pkg/replicator/transport"
)

type fakeTransport struct {
	do func(ctx context.Context, req transport.Request) (*transport.Response, error)
}

func (f *fakeTransport) Do(ctx context.Context, req transport.Request) (*transport.Response, error) {
	return f.do(ctx, req)
}

func jsonResponse(status int, body string) *transport.Response {
	return &transport.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestNegotiateDiff_PartitionsMissingAndAncestors(t *testing.T) {
	batch := replicator.NewRevisionList()
	batch.Add(&replicator.Revision{DocID: "doc1", ID: "2-b"})
	batch.Add(&replicator.Revision{DocID: "doc2", ID: "1-a"})

	var gotPath string
	tr := &fakeTransport{do: func(_ context.Context, req transport.Request) (*transport.Response, error) {
		gotPath = req.Path
		assert.Equal(t, http.MethodPost, req.Method)
		return jsonResponse(200, `{
			"doc1": {"missing": ["2-b"], "possible_ancestors": ["1-a"]},
			"doc2": {}
		}`), nil
	}}

	result, err := negotiateDiff(context.Background(), tr, batch)
	require.NoError(t, err)
	assert.Equal(t, "/_revs_diff", gotPath)
	assert.True(t, result.Missing("doc1", "2-b"))
	assert.False(t, result.Missing("doc2", "1-a"))
	assert.Equal(t, []replicator.RevID{"1-a"}, result["doc1"].PossibleAncestors)
}

func TestNegotiateDiff_PropagatesTransportError(t *testing.T) {
	batch := replicator.NewRevisionList()
	batch.Add(&replicator.Revision{DocID: "doc1", ID: "1-a"})

	tr := &fakeTransport{do: func(context.Context, transport.Request) (*transport.Response, error) {
		return jsonResponse(500, `{}`), nil
	}}

	_, err := negotiateDiff(context.Background(), tr, batch)
	assert.Error(t, err)
}

func TestNegotiateDiff_ProtocolViolationOnBadJSON(t *testing.T) {
	batch := replicator.NewRevisionList()
	batch.Add(&replicator.Revision{DocID: "doc1", ID: "1-a"})

	tr := &fakeTransport{do: func(context.Context, transport.Request) (*transport.Response, error) {
		return jsonResponse(200, `not json`), nil
	}}

	_, err := negotiateDiff(context.Background(), tr, batch)
	assert.Error(t, err)
}
