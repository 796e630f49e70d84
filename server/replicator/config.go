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

// Package replicator implements the push replicator: the lifecycle
// controller, inbox batcher, revs-diff negotiator, bulk/multipart
// uploader, and pending-sequence checkpoint tracker described by the
// push replicator's design.
package replicator

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mobiledb/pushrepl/pkg/replicator"
)

// Below are the default values of a Config's tunables.
const (
	DefaultInboxCapacity   = 100
	DefaultInboxFlush      = 500 * time.Millisecond
	DefaultChangesBatch    = 500
	DefaultCheckpointDelay = 1 * time.Second

	DefaultMaxRetries      = 10
	DefaultBaseInterval    = 500 * time.Millisecond
	DefaultMaxWaitInterval = 30 * time.Second
	DefaultRequestTimeout  = 60 * time.Second

	DefaultIncludeConflicts = false
	DefaultCreateTarget     = false
)

// Config configures one push replicator instance. It is typically
// constructed from the replication document the replicator-manager
// parses (spec.md §1 "out of scope"); this module only needs the fields
// below.
type Config struct {
	// RemoteURL is the base URL of the target database.
	RemoteURL string `yaml:"RemoteURL" validate:"required,url"`

	// CreateTarget mirrors the replication document's create_target
	// field (spec.md §6): when true, Start issues PUT / before the
	// first diff negotiation to create the target database if it is
	// missing. When false, ensureTarget is skipped entirely.
	CreateTarget bool `yaml:"CreateTarget"`

	// FilterName names a filter compiled by the local store's
	// FilterCompiler. Empty means no filtering.
	FilterName   string            `yaml:"FilterName"`
	FilterParams map[string]string `yaml:"FilterParams"`

	// DocIDs restricts replication to this explicit set of document IDs
	// when non-empty.
	DocIDs []string `yaml:"DocIDs"`

	// Continuous keeps the replicator running after the initial catch-up
	// scan, observing further local changes (spec.md §4.2).
	Continuous bool `yaml:"Continuous"`

	// IncludeConflicts replicates every conflicting leaf revision, not
	// just the winning one.
	IncludeConflicts bool `yaml:"IncludeConflicts"`

	InboxCapacity   int           `yaml:"InboxCapacity" validate:"gte=1"`
	InboxFlush      time.Duration `yaml:"InboxFlush" validate:"gt=0"`
	ChangesBatch    int           `yaml:"ChangesBatch" validate:"gte=1"`
	CheckpointDelay time.Duration `yaml:"CheckpointDelay" validate:"gte=0"`

	MaxRetries      uint64        `yaml:"MaxRetries"`
	BaseInterval    time.Duration `yaml:"BaseInterval" validate:"gt=0"`
	MaxWaitInterval time.Duration `yaml:"MaxWaitInterval" validate:"gt=0"`
	RequestTimeout  time.Duration `yaml:"RequestTimeout" validate:"gt=0"`
}

// NewConfig returns a Config with reasonable defaults for remoteURL.
func NewConfig(remoteURL string) *Config {
	return &Config{
		RemoteURL:        remoteURL,
		CreateTarget:     DefaultCreateTarget,
		IncludeConflicts: DefaultIncludeConflicts,
		InboxCapacity:    DefaultInboxCapacity,
		InboxFlush:       DefaultInboxFlush,
		ChangesBatch:     DefaultChangesBatch,
		CheckpointDelay:  DefaultCheckpointDelay,
		MaxRetries:       DefaultMaxRetries,
		BaseInterval:     DefaultBaseInterval,
		MaxWaitInterval:  DefaultMaxWaitInterval,
		RequestTimeout:   DefaultRequestTimeout,
	}
}

var configValidator = validator.New()

// Validate checks that required fields are present and sane, following
// the struct-tag validation pattern used elsewhere in this module.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("validate replicator config: %w", err)
	}
	return nil
}

// Filter builds the replicator.Filter for this config's FilterName, or
// nil if none was set. fn is the result of resolving FilterName against
// the local store's FilterCompiler.
func (c *Config) Filter(fn replicator.FilterFunc) *replicator.Filter {
	if c.FilterName == "" {
		return nil
	}
	return &replicator.Filter{
		Name:   c.FilterName,
		Params: c.FilterParams,
		Func:   fn,
	}
}
