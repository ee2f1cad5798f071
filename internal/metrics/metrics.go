// Package metrics exposes Prometheus collectors for the realtime subsystem.
//
// Label sets are kept to closed enumerations (event kind, outcome) so that
// cardinality stays bounded; user and venue ids are never used as labels.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SocketsConnected gauges currently open realtime connections on this instance.
	SocketsConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_sockets_connected",
		Help: "Currently connected realtime sockets.",
	})

	// EventsTotal counts inbound events by kind and outcome (ok|policy|error|malformed).
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_total",
		Help: "Inbound realtime events by kind and outcome.",
	}, []string{"event", "outcome"})

	// SignalsTotal counts signal submissions by outcome (sent|matched|duplicate|ignored|rejected).
	SignalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signals_total",
		Help: "Signal submissions by outcome.",
	}, []string{"outcome"})

	// MatchesTotal counts connections created from mutual signals.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matches_total",
		Help: "Connections created from mutual signals.",
	})

	// ModerationBlocked counts group messages stopped by the word filter.
	ModerationBlocked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "moderation_blocked_total",
		Help: "Group messages rejected by moderation.",
	})

	// FanoutDeliveries counts room emissions delivered to local sockets.
	FanoutDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_fanout_deliveries_total",
		Help: "Room emissions delivered to local sockets.",
	})
)

func init() {
	prometheus.MustRegister(
		SocketsConnected, EventsTotal, SignalsTotal,
		MatchesTotal, ModerationBlocked, FanoutDeliveries,
	)
}
