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

package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"

	"github.com/mobiledb/pushrepl/pkg/errors"
)

// AttachmentSource opens the bytes of one attachment named by a
// "follows": true entry in a document's "_attachments" dict.
type AttachmentSource interface {
	Open(name string) (AttachmentFile, error)
}

// AttachmentFile is a single attachment's content plus the MIME
// metadata the multipart writer needs for its part headers.
type AttachmentFile interface {
	Read(p []byte) (int, error)
	Close() error
	ContentType() string
	ContentEncoding() string
}

// MultipartUploader serializes multipart/related uploads through a
// single-slot queue, bounding memory and concurrent attachment streams
// (spec.md §4.3 "UploaderQueue").
type MultipartUploader struct {
	transport Transport
	slot      chan struct{}
}

// NewMultipartUploader returns an uploader that sends requests through t.
func NewMultipartUploader(t Transport) *MultipartUploader {
	slot := make(chan struct{}, 1)
	slot <- struct{}{}
	return &MultipartUploader{transport: t, slot: slot}
}

// Upload builds and sends a multipart/related PUT for docID, pairing
// each "follows": true attachment entry with a part from source, in the
// canonical-JSON key order of properties (spec.md §4.6). It blocks until
// the single upload slot is free.
func (u *MultipartUploader) Upload(
	ctx context.Context,
	docID string,
	properties map[string]interface{},
	source AttachmentSource,
) (*Response, error) {
	select {
	case <-u.slot:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { u.slot <- struct{}{} }()

	body, contentType, err := buildMultipartBody(properties, source)
	if err != nil {
		return nil, err
	}

	path := "/" + url.PathEscape(docID) + "?new_edits=false"
	return u.transport.Do(ctx, Request{
		Method:      http.MethodPut,
		Path:        path,
		Body:        body,
		ContentType: contentType,
	})
}

func buildMultipartBody(properties map[string]interface{}, source AttachmentSource) (*bytes.Buffer, string, error) {
	jsonPart, err := CanonicalJSON(properties)
	if err != nil {
		return nil, "", fmt.Errorf("canonicalize properties: %w", err)
	}

	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	jsonHeader := make(textproto.MIMEHeader)
	jsonHeader.Set("Content-Type", "application/json")
	part, err := writer.CreatePart(jsonHeader)
	if err != nil {
		return nil, "", fmt.Errorf("create json part: %w", err)
	}
	if _, err := part.Write(jsonPart); err != nil {
		return nil, "", fmt.Errorf("write json part: %w", err)
	}

	for _, name := range followingAttachmentNames(properties) {
		file, err := source.Open(name)
		if err != nil {
			return nil, "", errors.PerRequest(fmt.Sprintf("open attachment %q: %v", name, err))
		}

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		header.Set("Content-Type", file.ContentType())
		if enc := file.ContentEncoding(); enc != "" {
			header.Set("Content-Encoding", enc)
		}

		attPart, err := writer.CreatePart(header)
		if err != nil {
			_ = file.Close()
			return nil, "", fmt.Errorf("create attachment part for %q: %w", name, err)
		}
		if _, err := io.Copy(attPart, file); err != nil {
			_ = file.Close()
			return nil, "", fmt.Errorf("stream attachment %q: %w", name, err)
		}
		if err := file.Close(); err != nil {
			return nil, "", fmt.Errorf("close attachment %q: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return buf, "multipart/related; boundary=" + writer.Boundary(), nil
}

// followingAttachmentNames returns the names of attachments marked
// "follows": true, in canonical (lexicographic) key order, matching the
// order their JSON entries appear in the properties' canonical encoding
// (spec.md §4.6).
func followingAttachmentNames(properties map[string]interface{}) []string {
	attachments, ok := properties["_attachments"].(map[string]interface{})
	if !ok {
		return nil
	}

	names := make([]string, 0, len(attachments))
	for name, raw := range attachments {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if follows, _ := entry["follows"].(bool); follows {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

