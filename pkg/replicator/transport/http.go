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
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/http2"

	"github.com/mobiledb/pushrepl/pkg/errors"
)

// Options configures an HTTPTransport.
type Options struct {
	BaseURL string
	Authorizer Authorizer

	MaxRetries      uint64
	BaseInterval    time.Duration
	MaxWaitInterval time.Duration

	// RequestTimeout bounds a single attempt, not the whole retried call.
	RequestTimeout time.Duration
}

// DefaultOptions mirrors the teacher's webhook client defaults, scaled
// to the push replicator's longer-running HTTP exchanges.
func DefaultOptions(baseURL string) Options {
	return Options{
		BaseURL:         baseURL,
		MaxRetries:      10,
		BaseInterval:    500 * time.Millisecond,
		MaxWaitInterval: 30 * time.Second,
		RequestTimeout:  60 * time.Second,
	}
}

// ErrUnexpectedStatusCode is returned when the remote database responds
// with a status code the caller did not ask HTTPTransport to tolerate.
var ErrUnexpectedStatusCode = errors.Transport("unexpected status code from target database")

// HTTPTransport is the net/http-based Transport implementation used in
// production, with exponential-backoff retry and HTTP/2 enabled on the
// underlying connection pool (spec.md §7 "Transport errors are retried
// with exponential backoff").
type HTTPTransport struct {
	client  *http.Client
	base    *url.URL
	options Options
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport builds an HTTPTransport against opts.BaseURL.
func NewHTTPTransport(opts Options) (*HTTPTransport, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	rt := &http.Transport{}
	if err := http2.ConfigureTransport(rt); err != nil {
		return nil, fmt.Errorf("configure http2: %w", err)
	}

	return &HTTPTransport{
		client:  &http.Client{Transport: rt, Timeout: opts.RequestTimeout},
		base:    base,
		options: opts,
	}, nil
}

// Do implements Transport.
func (t *HTTPTransport) Do(ctx context.Context, req Request) (*Response, error) {
	ref, err := url.Parse(req.Path)
	if err != nil {
		return nil, fmt.Errorf("parse request path: %w", err)
	}
	target := *t.base
	target.Path = strings.TrimSuffix(t.base.Path, "/") + ref.Path
	target.RawPath = strings.TrimSuffix(t.base.EscapedPath(), "/") + ref.EscapedPath()
	target.RawQuery = ref.RawQuery

	var body []byte
	if req.Body != nil {
		if body, err = io.ReadAll(req.Body); err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
	}

	var resp *Response
	err = withExponentialBackoff(ctx, t.options.MaxRetries, t.options.BaseInterval, t.options.MaxWaitInterval,
		func() (int, error) {
			httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), bytes.NewReader(body))
			if err != nil {
				return 0, fmt.Errorf("build request: %w", err)
			}
			if req.ContentType != "" {
				httpReq.Header.Set("Content-Type", req.ContentType)
			}
			for k, vs := range req.Headers {
				for _, v := range vs {
					httpReq.Header.Add(k, v)
				}
			}

			if t.options.Authorizer != nil {
				if err := t.options.Authorizer.Authorize(httpReq); err != nil {
					return 0, errors.Transport(fmt.Sprintf("authorize request: %v", err))
				}
			}

			httpResp, err := t.client.Do(httpReq)
			if err != nil {
				return 0, errors.Transport(fmt.Sprintf("send request: %v", err))
			}

			resp = &Response{
				StatusCode: httpResp.StatusCode,
				Header:     httpResp.Header,
				Body:       httpResp.Body,
			}

			if !shouldRetryStatus(httpResp.StatusCode) {
				return httpResp.StatusCode, nil
			}
			return httpResp.StatusCode, fmt.Errorf("%d: %w", httpResp.StatusCode, ErrUnexpectedStatusCode)
		})
	if err != nil {
		return resp, err
	}

	return resp, nil
}

func withExponentialBackoff(
	ctx context.Context,
	maxRetries uint64,
	baseInterval, maxInterval time.Duration,
	attempt func() (int, error),
) error {
	var retries uint64
	var statusCode int
	for retries <= maxRetries {
		var err error
		statusCode, err = attempt()
		if !shouldRetry(statusCode, err) {
			return err
		}

		wait := waitInterval(retries, baseInterval, maxInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		retries++
	}

	return fmt.Errorf("exhausted retries, last status %d: %w", statusCode, ErrUnexpectedStatusCode)
}

func waitInterval(retries uint64, baseInterval, maxInterval time.Duration) time.Duration {
	interval := time.Duration(math.Pow(2, float64(retries))) * baseInterval
	if maxInterval < interval {
		return maxInterval
	}
	return interval
}

func shouldRetry(statusCode int, err error) bool {
	var errno syscall.Errno
	if stderrors.As(err, &errno) {
		return errno == syscall.ECONNRESET || errno == syscall.ECONNREFUSED
	}
	if err != nil && !stderrors.Is(err, ErrUnexpectedStatusCode) {
		// network-level failure below the HTTP layer: retry.
		return true
	}
	return shouldRetryStatus(statusCode)
}

func shouldRetryStatus(statusCode int) bool {
	return statusCode == http.StatusInternalServerError ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout ||
		statusCode == http.StatusTooManyRequests
}
