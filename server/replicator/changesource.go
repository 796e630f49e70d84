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
	"context"
	"fmt"

	pkgerrors "github.com/mobiledb/pushrepl/pkg/errors"
	"github.com/mobiledb/pushrepl/pkg/replicator"
	"github.com/mobiledb/pushrepl/pkg/replicator/db"
)

// scanChanges performs the initial catch-up scan: every change with
// sequence strictly greater than since, filtered at the source
// (spec.md §4.2).
func scanChanges(
	ctx context.Context,
	store db.ChangeSource,
	since int64,
	includeConflicts bool,
	filter *replicator.Filter,
) (*replicator.RevisionList, error) {
	list, err := store.ChangesSinceSequence(ctx, since, includeConflicts, filter)
	if err != nil {
		return nil, pkgerrors.LocalStore(fmt.Sprintf("scan changes since %d: %v", since, err))
	}
	return list, nil
}

// admitsNotification applies the continuous-mode cycle-break and filter
// rules to a single change notification (spec.md §4.2): a revision
// whose source equals remoteURL originated from the pull side and must
// never be pushed back, and is not even passed to the filter.
func admitsNotification(n db.ChangeNotification, remoteURL string, filter *replicator.Filter) bool {
	if n.Source == remoteURL {
		return false
	}
	return filter == nil || filter.Admits(n.Revision)
}
