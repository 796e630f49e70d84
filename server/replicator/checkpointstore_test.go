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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobiledb/pushrepl/pkg/replicator"
	"github.com/mobiledb/pushrepl/pkg/replicator/transport"
)

func TestLoadCheckpoint_MissingDocumentReturnsNoCheckpoint(t *testing.T) {
	tr := &fakeTransport{do: func(_ context.Context, req transport.Request) (*transport.Response, error) {
		assert.Equal(t, http.MethodGet, req.Method)
		assert.Equal(t, "/_local/session-1", req.Path)
		return jsonResponse(http.StatusNotFound, `{"error":"not_found"}`), nil
	}}

	cp, rev, err := loadCheckpoint(context.Background(), tr, "session-1")
	require.NoError(t, err)
	assert.Equal(t, replicator.NoCheckpoint, cp)
	assert.Empty(t, rev)
}

func TestLoadCheckpoint_DecodesExistingDocument(t *testing.T) {
	tr := &fakeTransport{do: func(context.Context, transport.Request) (*transport.Response, error) {
		return jsonResponse(http.StatusOK, `{"_id":"_local/session-1","_rev":"3-abc","lastSequence":"42"}`), nil
	}}

	cp, rev, err := loadCheckpoint(context.Background(), tr, "session-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), cp.Seq())
	assert.Equal(t, "3-abc", rev)
}

func TestSaveCheckpoint_SendsChainedRevAndReturnsNewRev(t *testing.T) {
	var gotBody []byte
	tr := &fakeTransport{do: func(_ context.Context, req transport.Request) (*transport.Response, error) {
		assert.Equal(t, http.MethodPut, req.Method)
		assert.Equal(t, "/_local/session-1", req.Path)
		gotBody, _ = io.ReadAll(req.Body)
		return jsonResponse(http.StatusCreated, `{"ok":true,"id":"_local/session-1","rev":"4-def"}`), nil
	}}

	newRev, err := saveCheckpoint(context.Background(), tr, "session-1", replicator.CheckpointFromSeq(43), "3-abc")
	require.NoError(t, err)
	assert.Equal(t, "4-def", newRev)
	assert.Contains(t, string(gotBody), `"_rev":"3-abc"`)
	assert.Contains(t, string(gotBody), `"lastSequence":"43"`)
}

func TestEnsureTarget_TreatsPreconditionFailedAsSuccess(t *testing.T) {
	tr := &fakeTransport{do: func(_ context.Context, req transport.Request) (*transport.Response, error) {
		assert.Equal(t, http.MethodPut, req.Method)
		assert.Equal(t, "/", req.Path)
		return jsonResponse(http.StatusPreconditionFailed, `{"error":"file_exists"}`), nil
	}}
	assert.NoError(t, ensureTarget(context.Background(), tr))
}

func TestEnsureTarget_TreatsDuplicateErrorBodyAsSuccess(t *testing.T) {
	tr := &fakeTransport{do: func(context.Context, transport.Request) (*transport.Response, error) {
		return jsonResponse(http.StatusForbidden, `{"error":"duplicate"}`), nil
	}}
	assert.NoError(t, ensureTarget(context.Background(), tr))
}

func TestEnsureTarget_PropagatesOtherErrors(t *testing.T) {
	tr := &fakeTransport{do: func(context.Context, transport.Request) (*transport.Response, error) {
		return jsonResponse(http.StatusUnauthorized, `{"error":"unauthorized"}`), nil
	}}
	assert.Error(t, ensureTarget(context.Background(), tr))
}
