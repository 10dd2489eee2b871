// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import "github.com/prometheus/client_golang/prometheus"

// Metrics are an agent's prometheus collectors.
type Metrics struct {
	MessagesHandled    *prometheus.CounterVec // by message type
	HandlerErrors      *prometheus.CounterVec // by message type
	Broadcasts         *prometheus.CounterVec // by message type
	BroadcastFailures  prometheus.Counter
	SyncRequests       prometheus.Counter
	RepairRequests     prometheus.Counter
	ForcedOperations   prometheus.Counter
	BufferedOperations prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with registerer
// when it is non-nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dawsync",
			Subsystem: "agent",
			Name:      "messages_handled_total",
			Help:      "Peer messages handled, by type.",
		}, []string{"type"}),
		HandlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dawsync",
			Subsystem: "agent",
			Name:      "handler_errors_total",
			Help:      "Peer messages that failed in whole or in part, by type.",
		}, []string{"type"}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dawsync",
			Subsystem: "agent",
			Name:      "broadcasts_total",
			Help:      "Messages sent to peers, by type.",
		}, []string{"type"}),
		BroadcastFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dawsync",
			Subsystem: "agent",
			Name:      "broadcast_failures_total",
			Help:      "Sends the transport rejected.",
		}),
		SyncRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dawsync",
			Subsystem: "agent",
			Name:      "sync_requests_total",
			Help:      "Periodic and startup sync requests sent.",
		}),
		RepairRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dawsync",
			Subsystem: "agent",
			Name:      "repair_requests_total",
			Help:      "Sync requests naming missing dependencies.",
		}),
		ForcedOperations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dawsync",
			Subsystem: "agent",
			Name:      "forced_operations_total",
			Help:      "Buffered operations applied without their dependencies.",
		}),
		BufferedOperations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dawsync",
			Subsystem: "agent",
			Name:      "buffered_operations",
			Help:      "Operations waiting for dependencies.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(
			m.MessagesHandled,
			m.HandlerErrors,
			m.Broadcasts,
			m.BroadcastFailures,
			m.SyncRequests,
			m.RepairRequests,
			m.ForcedOperations,
			m.BufferedOperations,
		)
	}
	return m
}
