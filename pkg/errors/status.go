/*
 * Copyright 2025 The Yorkie Authors. All rights reserved.
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

// Package errors provides the push replicator's error taxonomy (spec §7):
// transport, per-document, per-request, protocol-violation, local-store
// and filter-resolution errors, each carrying a status code so callers can
// decide whether an error is fatal, retryable, or safe to swallow.
package errors

import "fmt"

// StatusCode classifies an error along the lines of spec.md §7.
type StatusCode int

const (
	// ErrCodeTransport is a network/DNS/TLS error. Retryable; triggers
	// exponential retry in continuous mode.
	ErrCodeTransport StatusCode = iota + 1

	// ErrCodePerDocument is a 401/403/409 on one document inside a
	// _bulk_docs response. Logged, never propagated as a replication
	// failure.
	ErrCodePerDocument

	// ErrCodePerRequest is a per-request failure such as 415 on a
	// multipart PUT. Handled by a fallback path, not surfaced.
	ErrCodePerRequest

	// ErrCodeProtocolViolation is malformed JSON or a missing required
	// field in a remote response. Fatal, stops the replicator.
	ErrCodeProtocolViolation

	// ErrCodeLocalStore is a failure to load a revision body from the
	// local store. The revision is skipped via revisionFailed(); the
	// batch continues and the sequence is retried.
	ErrCodeLocalStore

	// ErrCodeFilterResolution means the configured filter name could not
	// be resolved against the local store. Fatal, before any batch is
	// produced.
	ErrCodeFilterResolution
)

// String returns the string representation of the status code.
func (c StatusCode) String() string {
	switch c {
	case ErrCodeTransport:
		return "transport"
	case ErrCodePerDocument:
		return "per_document"
	case ErrCodePerRequest:
		return "per_request"
	case ErrCodeProtocolViolation:
		return "protocol_violation"
	case ErrCodeLocalStore:
		return "local_store"
	case ErrCodeFilterResolution:
		return "filter_resolution"
	default:
		return fmt.Sprintf("code_%d", int(c))
	}
}

// Fatal reports whether an error of this status should stop the
// replicator outright, per spec.md §7's propagation rules.
func (c StatusCode) Fatal() bool {
	switch c {
	case ErrCodeProtocolViolation, ErrCodeFilterResolution:
		return true
	default:
		return false
	}
}

// Retryable reports whether an error of this status should be retried
// rather than surfaced.
func (c StatusCode) Retryable() bool {
	switch c {
	case ErrCodeTransport, ErrCodeLocalStore:
		return true
	default:
		return false
	}
}
