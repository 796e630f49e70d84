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

// Package transport is the push replicator's HTTP layer: the request and
// response types, the retrying HTTP client, multipart/related document
// uploads, canonical JSON encoding and the authorizers (spec.md §4.6,
// §7). The _revs_diff, _bulk_docs and checkpoint requests are built on
// top of it in server/replicator.
package transport

import (
	"context"
	"io"
	"net/http"
)

// Request is a single HTTP request to the remote target database,
// already relative to its base URL (e.g. "/_revs_diff").
type Request struct {
	Method      string
	Path        string
	Body        io.Reader
	ContentType string
	Headers     http.Header
}

// Response is the result of executing a Request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Transport sends requests to the remote target database. Implementations
// own retry/backoff and authorization (spec.md §4.1, §7 "Transport
// errors").
type Transport interface {
	// Do sends req and returns the raw response, retrying per the
	// transport's backoff policy on transient failures. A non-nil error
	// means every retry was exhausted or the failure was non-retryable.
	Do(ctx context.Context, req Request) (*Response, error)
}

// Authorizer attaches credentials to an outgoing request (spec.md §9).
type Authorizer interface {
	Authorize(req *http.Request) error
}
