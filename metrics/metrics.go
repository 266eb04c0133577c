package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "minichat"

var (
	InboundEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inbound_events_total",
		Help:      "Inbound channel events applied to session state, by event type.",
	}, []string{"type"})

	OutboundIntents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbound_intents_total",
		Help:      "Intents transmitted on the channel, by intent type.",
	}, []string{"type"})

	MalformedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "malformed_events_total",
		Help:      "Inbound frames dropped at the boundary, by stage (decode or validate).",
	}, []string{"stage"})

	RejectedIntents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rejected_intents_total",
		Help:      "Intents declined by the server, by intent type.",
	}, []string{"type"})

	DuplicateMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "duplicate_messages_total",
		Help:      "Redelivered messages dropped by id.",
	})

	Reconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconnects_total",
		Help:      "Reconnect attempts after transport failure, by result.",
	}, []string{"result"})

	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Alerts surfaced to the notification sink, by result.",
	}, []string{"result"})

	Connectivity = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connectivity",
		Help:      "Connectivity of the current session: 0 disconnected, 1 connecting, 2 connected.",
	})
)

func init() {
	prometheus.MustRegister(
		InboundEvents,
		OutboundIntents,
		MalformedEvents,
		RejectedIntents,
		DuplicateMessages,
		Reconnects,
		Notifications,
		Connectivity,
	)
}
