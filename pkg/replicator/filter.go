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

// FilterFunc is a user-supplied predicate over (Revision, params)
// returning whether the revision should be replicated (spec.md §3).
type FilterFunc func(rev *Revision, params map[string]string) bool

// Filter pairs a resolved FilterFunc with the name and params it was
// compiled from, so error messages and the replication-document surface
// can still refer to it by name (spec.md §6 query_params).
type Filter struct {
	Name   string
	Params map[string]string
	Func   FilterFunc
}

// Admits reports whether rev passes this filter. A nil filter admits
// everything.
func (f *Filter) Admits(rev *Revision) bool {
	if f == nil || f.Func == nil {
		return true
	}
	return f.Func(rev, f.Params)
}
