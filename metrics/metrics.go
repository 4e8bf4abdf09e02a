// Copyright 2026 The Quarry Authors
// This file is part of Quarry.
//
// Quarry is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Quarry is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Quarry. If not, see <http://www.gnu.org/licenses/>.

// Package metrics exposes the storage engine's Prometheus instrumentation:
// backend hit/miss counters, compaction timing, and cache occupancy.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Store is the set of counters and histograms wired through the Datastore
// façade, cache backend, and leveled pack store.
type Store struct {
	ops        *prometheus.CounterVec
	compaction prometheus.Histogram
	cacheBytes prometheus.Gauge
}

// New registers the storage engine's metrics against reg. Passing a nil
// Registerer (via prometheus.NewRegistry() omitted) still works: metrics are
// created but not registered, which is useful in tests.
func New(reg prometheus.Registerer) *Store {
	s := &Store{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quarry",
			Subsystem: "store",
			Name:      "ops_total",
			Help:      "Count of store operations by backend, op, and outcome.",
		}, []string{"backend", "op", "outcome"}),
		compaction: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quarry",
			Subsystem: "pack",
			Name:      "compaction_seconds",
			Help:      "Duration of a single level compaction merge.",
			Buckets:   prometheus.DefBuckets,
		}),
		cacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quarry",
			Subsystem: "cache",
			Name:      "bytes_in_use",
			Help:      "Current byte occupancy of the in-memory object cache.",
		}),
	}
	if reg != nil {
		reg.MustRegister(s.ops, s.compaction, s.cacheBytes)
	}
	return s
}

// Op records the outcome (hit, miss, put, error) of a single backend call.
func (s *Store) Op(backend, op, outcome string) {
	if s == nil {
		return
	}
	s.ops.WithLabelValues(backend, op, outcome).Inc()
}

// Compaction records how long a compaction merge took.
func (s *Store) Compaction(d time.Duration) {
	if s == nil {
		return
	}
	s.compaction.Observe(d.Seconds())
}

// SetCacheBytes reports the cache backend's current byte occupancy.
func (s *Store) SetCacheBytes(n uint64) {
	if s == nil {
		return
	}
	s.cacheBytes.Set(float64(n))
}
