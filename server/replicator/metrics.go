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
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace      = "pushrepl"
	sessionIDLabel = "session_id"
	stateLabel     = "state"
)

// Metrics manages the counters and gauges the push replicator exposes
// for a single replicator instance.
type Metrics struct {
	registry *prometheus.Registry

	stateTotal *prometheus.CounterVec

	inboxDepth         prometheus.Gauge
	pendingSequences   prometheus.Gauge
	checkpointSeq      prometheus.Gauge
	asyncTasksInFlight prometheus.Gauge

	changesReadTotal   prometheus.Counter
	bulkDocsSentTotal  prometheus.Counter
	multipartSentTotal prometheus.Counter
	docsFailedTotal    *prometheus.CounterVec
	revsDiffCallsTotal prometheus.Counter
}

// NewMetrics creates the Metrics for one push replicator instance,
// labeled by sessionID so multiple replicators can share a registry.
func NewMetrics(sessionID string) (*Metrics, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	labels := prometheus.Labels{sessionIDLabel: sessionID}

	m := &Metrics{
		registry: reg,
		stateTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "lifecycle",
			Name:        "state_transitions_total",
			Help:        "Total number of lifecycle state transitions, by resulting state.",
			ConstLabels: labels,
		}, []string{stateLabel}),
		inboxDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "inbox",
			Name:        "depth",
			Help:        "Current number of revisions buffered in the inbox batcher.",
			ConstLabels: labels,
		}),
		pendingSequences: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "checkpoint",
			Name:        "pending_sequences",
			Help:        "Current number of in-flight sequences not yet acknowledged by the remote.",
			ConstLabels: labels,
		}),
		checkpointSeq: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "checkpoint",
			Name:        "sequence",
			Help:        "Most recently scheduled checkpoint sequence; its save to the remote may still be pending.",
			ConstLabels: labels,
		}),
		asyncTasksInFlight: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "lifecycle",
			Name:        "async_tasks_in_flight",
			Help:        "Number of outstanding async tasks (diff, upload, checkpoint) counted toward idle detection.",
			ConstLabels: labels,
		}),
		changesReadTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "changes",
			Name:        "read_total",
			Help:        "Total number of revisions read from the local change source.",
			ConstLabels: labels,
		}),
		bulkDocsSentTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "upload",
			Name:        "bulk_docs_sent_total",
			Help:        "Total number of revisions sent via _bulk_docs.",
			ConstLabels: labels,
		}),
		multipartSentTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "upload",
			Name:        "multipart_sent_total",
			Help:        "Total number of revisions sent via multipart/related.",
			ConstLabels: labels,
		}),
		docsFailedTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "upload",
			Name:        "docs_failed_total",
			Help:        "Total number of per-document upload failures, by status code.",
			ConstLabels: labels,
		}, []string{"status"}),
		revsDiffCallsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "diff",
			Name:        "revs_diff_calls_total",
			Help:        "Total number of _revs_diff requests issued.",
			ConstLabels: labels,
		}),
	}

	return m, nil
}

// ObserveStateTransition records a lifecycle transition into the given
// state.
func (m *Metrics) ObserveStateTransition(state string) {
	m.stateTotal.With(prometheus.Labels{stateLabel: state}).Inc()
}

// SetInboxDepth records the inbox batcher's current buffered count.
func (m *Metrics) SetInboxDepth(n int) {
	m.inboxDepth.Set(float64(n))
}

// SetPendingSequences records the current in-flight sequence count.
func (m *Metrics) SetPendingSequences(n int) {
	m.pendingSequences.Set(float64(n))
}

// SetCheckpointSequence records the most recently scheduled checkpoint;
// its save to the remote may still be pending.
func (m *Metrics) SetCheckpointSequence(seq int64) {
	m.checkpointSeq.Set(float64(seq))
}

// AddAsyncTask adjusts the outstanding async-task gauge by delta.
func (m *Metrics) AddAsyncTask(delta int) {
	m.asyncTasksInFlight.Add(float64(delta))
}

// AddChangesRead adds to the total revisions read from the local store.
func (m *Metrics) AddChangesRead(n int) {
	m.changesReadTotal.Add(float64(n))
}

// AddBulkDocsSent adds to the total revisions sent via _bulk_docs.
func (m *Metrics) AddBulkDocsSent(n int) {
	m.bulkDocsSentTotal.Add(float64(n))
}

// AddMultipartSent increments the total revisions sent via multipart.
func (m *Metrics) AddMultipartSent() {
	m.multipartSentTotal.Inc()
}

// AddDocFailed records a per-document upload failure by status code.
func (m *Metrics) AddDocFailed(status int) {
	m.docsFailedTotal.With(prometheus.Labels{"status": fmt.Sprintf("%d", status)}).Inc()
}

// AddRevsDiffCall increments the total number of _revs_diff requests.
func (m *Metrics) AddRevsDiffCall() {
	m.revsDiffCallsTotal.Inc()
}

// Registry returns the registry backing this Metrics, for the CLI's
// status command or an HTTP exposition endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
