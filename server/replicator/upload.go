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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	pkgerrors "github.com/mobiledb/pushrepl/pkg/errors"
	"github.com/mobiledb/pushrepl/pkg/replicator"
	"github.com/mobiledb/pushrepl/pkg/replicator/db"
	"github.com/mobiledb/pushrepl/pkg/replicator/transport"
)

// bulkDocsResponseItem is one element of a _bulk_docs response array.
type bulkDocsResponseItem struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
	// Status, when present, is the authoritative numeric code.
	Status json.Number `json:"status,omitempty"`
}

// statusFromBulkDocsResponseItem classifies a _bulk_docs response item
// into an HTTP-style status code (spec.md §4.5).
func statusFromBulkDocsResponseItem(item bulkDocsResponseItem) int {
	if item.Status != "" {
		if n, err := item.Status.Int64(); err == nil && n >= 400 {
			return int(n)
		}
	}

	switch item.Error {
	case "":
		return http.StatusOK
	case "unauthorized":
		return http.StatusUnauthorized
	case "forbidden":
		return http.StatusForbidden
	case "conflict":
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// uploadOutcome reports, per docID, whether the upload succeeded and
// whether the failure (if any) should be treated as a per-document
// failure (spec.md §7 — not fatal, logged and kept pending for retry).
// err is nil when ok is true; otherwise it carries the classified
// status error tagged with the docID/revID that produced it.
type uploadOutcome struct {
	docID  string
	ok     bool
	status int
	fatal  bool
	err    error
}

// bulkUpload sends revs to /_bulk_docs with new_edits=false and
// classifies each response item (spec.md §4.5).
func bulkUpload(ctx context.Context, t transport.Transport, revs []*replicator.Revision) ([]uploadOutcome, error) {
	if len(revs) == 0 {
		return nil, nil
	}

	docs := make([]map[string]interface{}, 0, len(revs))
	for _, rev := range revs {
		docs = append(docs, rev.Properties)
	}

	body, err := json.Marshal(map[string]interface{}{
		"docs":      docs,
		"new_edits": false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal _bulk_docs request: %w", err)
	}

	resp, err := t.Do(ctx, transport.Request{
		Method:      http.MethodPost,
		Path:        "/_bulk_docs",
		Body:        bytes.NewReader(body),
		ContentType: "application/json",
	})
	if err != nil {
		return nil, pkgerrors.Transport(fmt.Sprintf("_bulk_docs: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, pkgerrors.Transport(fmt.Sprintf("_bulk_docs returned status %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Transport(fmt.Sprintf("read _bulk_docs response: %v", err))
	}

	var items []bulkDocsResponseItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, pkgerrors.ProtocolViolation(fmt.Sprintf("decode _bulk_docs response: %v", err))
	}

	byID := make(map[string]bulkDocsResponseItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	outcomes := make([]uploadOutcome, 0, len(revs))
	for _, rev := range revs {
		item, reported := byID[rev.DocID]
		if !reported {
			outcomes = append(outcomes, uploadOutcome{docID: rev.DocID, ok: true, status: http.StatusOK})
			continue
		}

		status := statusFromBulkDocsResponseItem(item)
		if status == http.StatusOK {
			outcomes = append(outcomes, uploadOutcome{docID: rev.DocID, ok: true, status: status})
			continue
		}

		// Per-document 401/403/409 are not replication failures
		// (spec.md §7): the revision stays pending for retry, but the
		// replicator itself does not stop.
		fatal := status != http.StatusUnauthorized && status != http.StatusForbidden && status != http.StatusConflict

		msg := fmt.Sprintf("_bulk_docs: %s failed with status %d", rev.DocID, status)
		var docErr pkgerrors.StatusError
		if fatal {
			docErr = pkgerrors.Transport(msg)
		} else {
			docErr = pkgerrors.PerDocument(msg)
		}
		wrapped := pkgerrors.WithMetadata(docErr, map[string]string{
			"doc_id": rev.DocID,
			"rev_id": string(rev.ID),
		})

		outcomes = append(outcomes, uploadOutcome{docID: rev.DocID, ok: false, status: status, fatal: fatal, err: wrapped})
	}

	return outcomes, nil
}

// putDocJSON sends a single-document PUT /<docID>?new_edits=false with
// properties as the JSON body, mirroring MultipartUploader.Upload's path
// construction (spec.md §4.6, §6). Used for the inlined-JSON fallback once
// multipart has been rejected with 415 for the session.
func putDocJSON(ctx context.Context, t transport.Transport, rev *replicator.Revision) (uploadOutcome, error) {
	body, err := json.Marshal(rev.Properties)
	if err != nil {
		return uploadOutcome{}, fmt.Errorf("marshal PUT %s body: %w", rev.DocID, err)
	}

	path := "/" + url.PathEscape(rev.DocID) + "?new_edits=false"
	resp, err := t.Do(ctx, transport.Request{
		Method:      http.MethodPut,
		Path:        path,
		Body:        bytes.NewReader(body),
		ContentType: "application/json",
	})
	if err != nil {
		return uploadOutcome{}, pkgerrors.Transport(fmt.Sprintf("PUT %s: %v", rev.DocID, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		return uploadOutcome{docID: rev.DocID, ok: true, status: resp.StatusCode}, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return uploadOutcome{}, pkgerrors.Transport(fmt.Sprintf("read PUT %s response: %v", rev.DocID, err))
	}

	var item bulkDocsResponseItem
	_ = json.Unmarshal(raw, &item)
	if item.Status == "" {
		item.Status = json.Number(fmt.Sprintf("%d", resp.StatusCode))
	}
	status := statusFromBulkDocsResponseItem(item)

	// Per-document 401/403/409 are not replication failures (spec.md §7):
	// the revision stays pending for retry, but the replicator itself
	// does not stop.
	fatal := status != http.StatusUnauthorized && status != http.StatusForbidden && status != http.StatusConflict

	msg := fmt.Sprintf("PUT %s failed with status %d", rev.DocID, status)
	var docErr pkgerrors.StatusError
	if fatal {
		docErr = pkgerrors.Transport(msg)
	} else {
		docErr = pkgerrors.PerDocument(msg)
	}
	wrapped := pkgerrors.WithMetadata(docErr, map[string]string{
		"doc_id": rev.DocID,
		"rev_id": string(rev.ID),
	})

	return uploadOutcome{docID: rev.DocID, ok: false, status: status, fatal: fatal, err: wrapped}, nil
}

// stubAttachments marks every attachment on rev's properties whose
// revpos is at or below ancestorGeneration as a stub, per spec.md §4.5.
// It mutates a shallow copy of properties so callers keep the original
// revision untouched.
func stubAttachments(properties map[string]interface{}, ancestorGeneration int) map[string]interface{} {
	if ancestorGeneration == 0 {
		return properties
	}

	attachments, ok := properties["_attachments"].(map[string]interface{})
	if !ok {
		return properties
	}

	stubbed := make(map[string]interface{}, len(attachments))
	for name, raw := range attachments {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			stubbed[name] = raw
			continue
		}

		revpos, _ := toInt(entry["revpos"])
		if revpos > 0 && revpos <= ancestorGeneration {
			clone := make(map[string]interface{}, len(entry))
			for k, v := range entry {
				clone[k] = v
			}
			clone["stub"] = true
			delete(clone, "follows")
			delete(clone, "data")
			stubbed[name] = clone
			continue
		}
		stubbed[name] = entry
	}

	out := make(map[string]interface{}, len(properties))
	for k, v := range properties {
		out[k] = v
	}
	out["_attachments"] = stubbed
	return out
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

// hasFollowingAttachments reports whether properties still has any
// "follows": true attachment entry after stubbing (spec.md §4.5).
func hasFollowingAttachments(properties map[string]interface{}) bool {
	attachments, ok := properties["_attachments"].(map[string]interface{})
	if !ok {
		return false
	}
	for _, raw := range attachments {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if follows, _ := entry["follows"].(bool); follows {
			return true
		}
	}
	return false
}

// inlineAttachments replaces every "follows": true attachment entry with
// base64-encoded inline data, for the multipart-fallback JSON path
// (spec.md §4.6 "re-uploads this revision via PUT ... with attachments
// inlined as base64").
func inlineAttachments(properties map[string]interface{}, resolver db.AttachmentFileResolver) (map[string]interface{}, error) {
	attachments, ok := properties["_attachments"].(map[string]interface{})
	if !ok {
		return properties, nil
	}

	inlined := make(map[string]interface{}, len(attachments))
	for name, raw := range attachments {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			inlined[name] = raw
			continue
		}
		follows, _ := entry["follows"].(bool)
		if !follows {
			inlined[name] = entry
			continue
		}

		file, err := resolver.FileForAttachmentDict(entry)
		if err != nil {
			return nil, pkgerrors.LocalStore(fmt.Sprintf("resolve attachment %q: %v", name, err))
		}

		reader, err := file.Open()
		if err != nil {
			return nil, pkgerrors.LocalStore(fmt.Sprintf("open attachment %q: %v", name, err))
		}
		raw, err := io.ReadAll(reader)
		_ = reader.Close()
		if err != nil {
			return nil, pkgerrors.LocalStore(fmt.Sprintf("read attachment %q: %v", name, err))
		}

		clone := make(map[string]interface{}, len(entry))
		for k, v := range entry {
			clone[k] = v
		}
		delete(clone, "follows")
		clone["data"] = base64.StdEncoding.EncodeToString(raw)
		inlined[name] = clone
	}

	out := make(map[string]interface{}, len(properties))
	for k, v := range properties {
		out[k] = v
	}
	out["_attachments"] = inlined

	return out, nil
}

// attachmentSourceFromStore adapts a db.AttachmentFileResolver plus a
// document's "_attachments" dict into the transport.AttachmentSource the
// multipart uploader needs.
type attachmentSourceFromStore struct {
	resolver    db.AttachmentFileResolver
	attachments map[string]interface{}
}

func (s *attachmentSourceFromStore) Open(name string) (transport.AttachmentFile, error) {
	entry, ok := s.attachments[name].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("no attachment entry for %q", name)
	}

	file, err := s.resolver.FileForAttachmentDict(entry)
	if err != nil {
		return nil, err
	}

	reader, err := file.Open()
	if err != nil {
		return nil, err
	}

	contentType, _ := entry["content_type"].(string)
	contentEncoding, _ := entry["encoding"].(string)

	return &storeAttachmentFile{
		ReadCloser:      reader,
		contentType:     contentType,
		contentEncoding: contentEncoding,
	}, nil
}

type storeAttachmentFile struct {
	db.ReadCloser
	contentType     string
	contentEncoding string
}

func (f *storeAttachmentFile) ContentType() string     { return f.contentType }
func (f *storeAttachmentFile) ContentEncoding() string { return f.contentEncoding }
