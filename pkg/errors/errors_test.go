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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode_String(t *testing.T) {
	tests := []struct {
		name string
		code StatusCode
		want string
	}{
		{"Transport", ErrCodeTransport, "transport"},
		{"PerDocument", ErrCodePerDocument, "per_document"},
		{"PerRequest", ErrCodePerRequest, "per_request"},
		{"ProtocolViolation", ErrCodeProtocolViolation, "protocol_violation"},
		{"LocalStore", ErrCodeLocalStore, "local_store"},
		{"FilterResolution", ErrCodeFilterResolution, "filter_resolution"},
		{"Unknown", StatusCode(999), "code_999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.String())
		})
	}
}

func TestStatusCode_Fatal(t *testing.T) {
	fatal := []StatusCode{ErrCodeProtocolViolation, ErrCodeFilterResolution}
	nonFatal := []StatusCode{ErrCodeTransport, ErrCodePerDocument, ErrCodePerRequest, ErrCodeLocalStore}

	for _, code := range fatal {
		t.Run(fmt.Sprintf("Fatal_%s", code.String()), func(t *testing.T) {
			assert.True(t, code.Fatal())
		})
	}
	for _, code := range nonFatal {
		t.Run(fmt.Sprintf("NonFatal_%s", code.String()), func(t *testing.T) {
			assert.False(t, code.Fatal())
		})
	}
}

func TestStatusCode_Retryable(t *testing.T) {
	assert.True(t, ErrCodeTransport.Retryable())
	assert.True(t, ErrCodeLocalStore.Retryable())
	assert.False(t, ErrCodePerDocument.Retryable())
	assert.False(t, ErrCodeProtocolViolation.Retryable())
}

func TestErrorConstructors(t *testing.T) {
	t.Run("Transport", func(t *testing.T) {
		err := Transport("connection reset")
		assert.Equal(t, "connection reset", err.Error())
		assert.Equal(t, ErrCodeTransport, err.Status())
	})

	t.Run("PerDocument", func(t *testing.T) {
		err := PerDocument("forbidden")
		assert.Equal(t, ErrCodePerDocument, err.Status())
	})

	t.Run("ProtocolViolation", func(t *testing.T) {
		err := ProtocolViolation("missing missing[] field")
		assert.Equal(t, ErrCodeProtocolViolation, err.Status())
		assert.True(t, IsFatal(err))
	})

	t.Run("FilterResolution", func(t *testing.T) {
		err := FilterResolution("unknown filter: missing")
		assert.Equal(t, ErrCodeFilterResolution, err.Status())
		assert.True(t, IsFatal(err))
	})
}

func TestStatusOf(t *testing.T) {
	t.Run("StatusError", func(t *testing.T) {
		err := Transport("test error")
		assert.Equal(t, ErrCodeTransport, StatusOf(err))
	})

	t.Run("WrappedStatusError", func(t *testing.T) {
		baseErr := Transport("base error")
		wrappedErr := fmt.Errorf("wrapped: %w", baseErr)
		assert.Equal(t, ErrCodeTransport, StatusOf(wrappedErr))
	})

	t.Run("StandardError", func(t *testing.T) {
		err := errors.New("standard error")
		assert.Equal(t, StatusCode(0), StatusOf(err))
	})

	t.Run("NilError", func(t *testing.T) {
		assert.Equal(t, StatusCode(0), StatusOf(nil))
	})
}

func TestIsStatus(t *testing.T) {
	err := PerRequest("415 unsupported media type")

	assert.True(t, IsStatus(err, ErrCodePerRequest))
	assert.False(t, IsStatus(err, ErrCodeTransport))
	assert.False(t, IsStatus(nil, ErrCodePerRequest))
}

func TestIsFatalIsRetryable(t *testing.T) {
	assert.True(t, IsFatal(ProtocolViolation("bad json")))
	assert.False(t, IsFatal(Transport("timeout")))
	assert.True(t, IsRetryable(Transport("timeout")))
	assert.False(t, IsRetryable(PerDocument("conflict")))
}

func TestErrorChaining(t *testing.T) {
	t.Run("WrappedStatusError", func(t *testing.T) {
		baseErr := Transport("base error")
		wrappedErr := fmt.Errorf("operation failed: %w", baseErr)
		doubleWrappedErr := fmt.Errorf("request failed: %w", wrappedErr)
		assert.Equal(t, ErrCodeTransport, StatusOf(doubleWrappedErr))
	})

	t.Run("UnwrapChain", func(t *testing.T) {
		baseErr := PerRequest("415").WithCode("multipart_unsupported")
		wrappedErr := fmt.Errorf("upload failed: %w", baseErr)

		var statusErr StatusError
		assert.True(t, errors.As(wrappedErr, &statusErr))
		assert.Equal(t, ErrCodePerRequest, statusErr.Status())
		assert.Equal(t, "415", statusErr.Error())
	})
}

func TestWithMetadata(t *testing.T) {
	t.Run("WithMetadata adds metadata to error", func(t *testing.T) {
		baseErr := PerDocument("forbidden")
		metadata := map[string]string{
			"doc_id": "doc1",
			"rev_id": "2-b",
		}

		errWithMeta := WithMetadata(baseErr, metadata)
		assert.NotNil(t, errWithMeta)
		assert.Equal(t, ErrCodePerDocument, StatusOf(errWithMeta))

		extractedMeta := Metadata(errWithMeta)
		assert.Equal(t, "doc1", extractedMeta["doc_id"])
		assert.Equal(t, "2-b", extractedMeta["rev_id"])
	})

	t.Run("WithMetadata on nil error returns nil", func(t *testing.T) {
		result := WithMetadata(nil, map[string]string{"key": "value"})
		assert.Nil(t, result)
	})

	t.Run("WithMetadata with nil metadata returns original error", func(t *testing.T) {
		baseErr := ProtocolViolation("internal error")
		result := WithMetadata(baseErr, nil)
		assert.Equal(t, baseErr, result)
	})

	t.Run("Multiple WithMetadata calls merge metadata", func(t *testing.T) {
		baseErr := PerDocument("access denied")

		err1 := WithMetadata(baseErr, map[string]string{"reason": "unauthorized"})
		err2 := WithMetadata(err1, map[string]string{"doc_id": "doc1"})

		metadata := Metadata(err2)
		assert.Equal(t, "unauthorized", metadata["reason"])
		assert.Equal(t, "doc1", metadata["doc_id"])
		assert.Equal(t, ErrCodePerDocument, StatusOf(err2))
	})
}
