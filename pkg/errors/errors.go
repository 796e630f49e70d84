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

package errors

import (
	"errors"
)

// StatusError represents an error that carries a structured status code.
type StatusError interface {
	error
	Status() StatusCode
	Code() string
	WithCode(code string) StatusError
}

type errorWithStatus struct {
	err    error
	status StatusCode
	code   string
}

func (e errorWithStatus) Error() string {
	return e.err.Error()
}

func (e errorWithStatus) Status() StatusCode {
	return e.status
}

func (e errorWithStatus) Code() string {
	return e.code
}

// Unwrap returns the underlying error for error chain compatibility.
func (e errorWithStatus) Unwrap() error {
	return e.err
}

// WithCode returns a new StatusError with the given custom code attached.
func (e errorWithStatus) WithCode(code string) StatusError {
	return errorWithStatus{
		err:    e.err,
		status: e.status,
		code:   code,
	}
}

func newErrorWithStatus(err error, status StatusCode) StatusError {
	return errorWithStatus{err: err, status: status}
}

// Transport creates a new transport-level error (network, DNS, TLS).
func Transport(message string) StatusError {
	return newErrorWithStatus(errors.New(message), ErrCodeTransport)
}

// PerDocument creates a new per-document error from a _bulk_docs item
// (401/403/409). Never propagated as a replication failure.
func PerDocument(message string) StatusError {
	return newErrorWithStatus(errors.New(message), ErrCodePerDocument)
}

// PerRequest creates a new per-request error (415 on multipart).
func PerRequest(message string) StatusError {
	return newErrorWithStatus(errors.New(message), ErrCodePerRequest)
}

// ProtocolViolation creates a new fatal protocol error: malformed JSON or a
// missing field in a remote response.
func ProtocolViolation(message string) StatusError {
	return newErrorWithStatus(errors.New(message), ErrCodeProtocolViolation)
}

// LocalStore creates a new error for a failed local revision-body load.
func LocalStore(message string) StatusError {
	return newErrorWithStatus(errors.New(message), ErrCodeLocalStore)
}

// FilterResolution creates a new fatal error for an unresolved filter name.
func FilterResolution(message string) StatusError {
	return newErrorWithStatus(errors.New(message), ErrCodeFilterResolution)
}

// StatusOf extracts the StatusCode from err, or 0 if err carries none.
func StatusOf(err error) StatusCode {
	if err == nil {
		return 0
	}

	if statusErr, ok := err.(StatusError); ok {
		return statusErr.Status()
	}

	var statusErr StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status()
	}

	return 0
}

// IsStatus reports whether err carries the given status code.
func IsStatus(err error, code StatusCode) bool {
	return StatusOf(err) == code
}

// IsFatal reports whether err should stop the replicator per spec.md §7.
func IsFatal(err error) bool {
	return StatusOf(err).Fatal()
}

// IsRetryable reports whether err should be retried rather than surfaced.
func IsRetryable(err error) bool {
	return StatusOf(err).Retryable()
}
