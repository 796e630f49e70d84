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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	pkgerrors "github.com/mobiledb/pushrepl/pkg/errors"
	"github.com/mobiledb/pushrepl/pkg/replicator"
	"github.com/mobiledb/pushrepl/pkg/replicator/transport"
)

type checkpointDoc struct {
	ID      string `json:"_id"`
	Rev     string `json:"_rev,omitempty"`
	LastSeq string `json:"lastSequence"`
}

// loadCheckpoint GETs /_local/<sessionID> and returns the persisted
// checkpoint, or replicator.NoCheckpoint if the document does not yet
// exist (spec.md §4.8, §6).
func loadCheckpoint(ctx context.Context, t transport.Transport, sessionID string) (replicator.Checkpoint, string, error) {
	resp, err := t.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/_local/" + url.PathEscape(sessionID),
	})
	if err != nil {
		return replicator.NoCheckpoint, "", pkgerrors.Transport(fmt.Sprintf("load checkpoint: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return replicator.NoCheckpoint, "", nil
	}
	if resp.StatusCode >= 400 {
		return replicator.NoCheckpoint, "", pkgerrors.Transport(fmt.Sprintf("load checkpoint: status %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return replicator.NoCheckpoint, "", pkgerrors.Transport(fmt.Sprintf("read checkpoint response: %v", err))
	}

	var doc checkpointDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return replicator.NoCheckpoint, "", pkgerrors.ProtocolViolation(fmt.Sprintf("decode checkpoint document: %v", err))
	}

	return replicator.Checkpoint(doc.LastSeq), doc.Rev, nil
}

// saveCheckpoint PUTs /_local/<sessionID> with the new checkpoint value,
// chaining off the previous revision, and returns the new revision.
func saveCheckpoint(
	ctx context.Context,
	t transport.Transport,
	sessionID string,
	checkpoint replicator.Checkpoint,
	previousRev string,
) (string, error) {
	doc := checkpointDoc{
		ID:      "_local/" + sessionID,
		Rev:     previousRev,
		LastSeq: string(checkpoint),
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal checkpoint document: %w", err)
	}

	resp, err := t.Do(ctx, transport.Request{
		Method:      http.MethodPut,
		Path:        "/_local/" + url.PathEscape(sessionID),
		Body:        bytes.NewReader(body),
		ContentType: "application/json",
	})
	if err != nil {
		return "", pkgerrors.Transport(fmt.Sprintf("save checkpoint: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", pkgerrors.Transport(fmt.Sprintf("save checkpoint: status %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", pkgerrors.Transport(fmt.Sprintf("read checkpoint save response: %v", err))
	}

	var result struct {
		Rev string `json:"rev"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", pkgerrors.ProtocolViolation(fmt.Sprintf("decode checkpoint save response: %v", err))
	}

	return result.Rev, nil
}

// ensureTarget issues PUT / against the remote, treating 201, 412
// ("Precondition Failed") and a "duplicate" error string as success
// (spec.md §4.1).
func ensureTarget(ctx context.Context, t transport.Transport) error {
	resp, err := t.Do(ctx, transport.Request{Method: http.MethodPut, Path: "/"})
	if err != nil {
		return pkgerrors.Transport(fmt.Sprintf("create target database: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusPreconditionFailed {
		return nil
	}

	raw, _ := io.ReadAll(resp.Body)
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error == "duplicate" {
		return nil
	}

	if resp.StatusCode >= 400 {
		return pkgerrors.Transport(fmt.Sprintf("create target database: status %d", resp.StatusCode))
	}
	return nil
}
