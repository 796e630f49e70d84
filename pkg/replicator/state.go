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

// State is one of the push replicator's lifecycle states (spec.md §3,
// §4.1).
type State int

const (
	// StateStopped means the replicator has not started, or has fully
	// stopped after a one-shot run or an unrecoverable error.
	StateStopped State = iota

	// StateStarting means start() is loading the checkpoint and, if
	// configured, creating the target database.
	StateStarting

	// StateRunning means the change source is actively scanning or the
	// inbox/uploader have outstanding work.
	StateRunning

	// StateIdle means the inbox is empty, the async-task counter is
	// zero, and the upload queue is empty (spec.md §4.1).
	StateIdle

	// StateRetrying means a transient transport error is being retried
	// with exponential backoff.
	StateRetrying

	// StateOffline means goOffline() suspended the change-notification
	// subscription.
	StateOffline

	// StateError means a fatal error was recorded. Start leaves the
	// replicator here when it fails; a fatal error after Start is
	// recorded and then stop() moves the replicator on to StateStopped.
	StateError
)

// String renders the state the way replication-document observers expect
// (spec.md §6: triggered/completed/error), plus the finer-grained names
// used internally.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateIdle:
		return "idle"
	case StateRetrying:
		return "retrying"
	case StateOffline:
		return "offline"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ReplicationState is the coarse state exposed on the replication-document
// surface (spec.md §6).
type ReplicationState string

const (
	// ReplicationTriggered means the replication is actively running.
	ReplicationTriggered ReplicationState = "triggered"
	// ReplicationCompleted means the replicator has stopped (StateStopped),
	// whether or not a fatal error was recorded along the way.
	ReplicationCompleted ReplicationState = "completed"
	// ReplicationError means the replicator is in StateError.
	ReplicationError ReplicationState = "error"
)

// Observe maps the fine-grained internal State onto the replication
// document's three-value surface.
func (s State) Observe() ReplicationState {
	switch s {
	case StateError:
		return ReplicationError
	case StateStopped:
		return ReplicationCompleted
	default:
		return ReplicationTriggered
	}
}
