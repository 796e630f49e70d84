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

	pkgerrors "github.com/mobiledb/pushrepl/pkg/errors"
	"github.com/mobiledb/pushrepl/pkg/replicator"
	"github.com/mobiledb/pushrepl/pkg/replicator/transport"
)

type revsDiffResponseEntry struct {
	Missing           []string `json:"missing,omitempty"`
	PossibleAncestors []string `json:"possible_ancestors,omitempty"`
}

// negotiateDiff issues POST /_revs_diff for batch and returns the
// partitioned result (spec.md §4.4).
func negotiateDiff(ctx context.Context, t transport.Transport, batch *replicator.RevisionList) (replicator.DiffResult, error) {
	request := make(map[string][]string)
	for docID, revs := range batch.ByDocID() {
		ids := make([]string, 0, len(revs))
		for _, rev := range revs {
			ids = append(ids, string(rev.ID))
		}
		request[docID] = ids
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal _revs_diff request: %w", err)
	}

	resp, err := t.Do(ctx, transport.Request{
		Method:      http.MethodPost,
		Path:        "/_revs_diff",
		Body:        bytes.NewReader(body),
		ContentType: "application/json",
	})
	if err != nil {
		return nil, pkgerrors.Transport(fmt.Sprintf("_revs_diff: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, pkgerrors.Transport(fmt.Sprintf("_revs_diff returned status %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Transport(fmt.Sprintf("read _revs_diff response: %v", err))
	}

	var decoded map[string]revsDiffResponseEntry
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, pkgerrors.ProtocolViolation(fmt.Sprintf("decode _revs_diff response: %v", err))
	}

	result := make(replicator.DiffResult, len(decoded))
	for docID, entry := range decoded {
		diff := replicator.DocDiff{}
		for _, id := range entry.Missing {
			diff.Missing = append(diff.Missing, replicator.RevID(id))
		}
		for _, id := range entry.PossibleAncestors {
			diff.PossibleAncestors = append(diff.PossibleAncestors, replicator.RevID(id))
		}
		result[docID] = diff
	}

	return result, nil
}
