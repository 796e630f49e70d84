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

package transport_test

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobiledb/pushrepl/pkg/replicator/transport"
)

type fakeAttachment struct {
	*bytes.Reader
	contentType     string
	contentEncoding string
}

func (f *fakeAttachment) Close() error            { return nil }
func (f *fakeAttachment) ContentType() string     { return f.contentType }
func (f *fakeAttachment) ContentEncoding() string { return f.contentEncoding }

type fakeAttachmentSource struct {
	files map[string]*fakeAttachment
}

func (s *fakeAttachmentSource) Open(name string) (transport.AttachmentFile, error) {
	f, ok := s.files[name]
	if !ok {
		return nil, fmt.Errorf("no such attachment %q", name)
	}
	return f, nil
}

type captureTransport struct {
	lastReq  transport.Request
	response *transport.Response
}

func (c *captureTransport) Do(_ context.Context, req transport.Request) (*transport.Response, error) {
	c.lastReq = req
	return c.response, nil
}

func TestMultipartUploader_Upload_PartsFollowCanonicalOrder(t *testing.T) {
	capture := &captureTransport{response: &transport.Response{StatusCode: http.StatusCreated}}
	uploader := transport.NewMultipartUploader(capture)

	source := &fakeAttachmentSource{files: map[string]*fakeAttachment{
		"b.txt": {Reader: bytes.NewReader([]byte("second")), contentType: "text/plain"},
		"a.txt": {Reader: bytes.NewReader([]byte("first")), contentType: "text/plain", contentEncoding: "gzip"},
	}}

	properties := map[string]interface{}{
		"_id": "doc1",
		"_attachments": map[string]interface{}{
			"a.txt": map[string]interface{}{"follows": true, "revpos": 1},
			"b.txt": map[string]interface{}{"follows": true, "revpos": 1},
		},
	}

	resp, err := uploader.Upload(context.Background(), "doc1", properties, source)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Equal(t, http.MethodPut, capture.lastReq.Method)
	assert.Equal(t, "/doc1?new_edits=false", capture.lastReq.Path)

	_, params, err := mime.ParseMediaType(capture.lastReq.ContentType)
	require.NoError(t, err)

	bodyBytes, ok := capture.lastReq.Body.(*bytes.Buffer)
	require.True(t, ok)

	reader := multipart.NewReader(bytes.NewReader(bodyBytes.Bytes()), params["boundary"])

	part, err := reader.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "application/json", part.Header.Get("Content-Type"))

	part, err = reader.NextPart()
	require.NoError(t, err)
	assert.Contains(t, part.Header.Get("Content-Disposition"), `filename="a.txt"`)
	assert.Equal(t, "gzip", part.Header.Get("Content-Encoding"))

	part, err = reader.NextPart()
	require.NoError(t, err)
	assert.Contains(t, part.Header.Get("Content-Disposition"), `filename="b.txt"`)

	_, err = reader.NextPart()
	assert.Error(t, err) // no more parts
}

func TestMultipartUploader_Upload_SkipsNonFollowingAttachments(t *testing.T) {
	capture := &captureTransport{response: &transport.Response{StatusCode: http.StatusCreated}}
	uploader := transport.NewMultipartUploader(capture)

	source := &fakeAttachmentSource{files: map[string]*fakeAttachment{}}
	properties := map[string]interface{}{
		"_attachments": map[string]interface{}{
			"stubbed.txt": map[string]interface{}{"stub": true, "revpos": 1},
		},
	}

	_, err := uploader.Upload(context.Background(), "doc1", properties, source)
	require.NoError(t, err)
}
