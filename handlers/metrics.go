package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "secun0c_events_handled_total",
	Help: "Number of platform events handled",
}, []string{"event"})

var eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "secun0c_events_dropped_total",
	Help: "Number of events dropped before detection",
}, []string{"reason"})

var handlerPanics = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "secun0c_handler_panics_total",
	Help: "Number of event handlers that panicked",
}, []string{"event"})

var signalsBreached = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "secun0c_signals_breached_total",
	Help: "Number of signals that crossed their threshold",
}, []string{"kind"})

var revertsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "secun0c_reverts_total",
	Help: "Number of compensating changes applied",
}, []string{"kind"})

var revertErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "secun0c_revert_errors_total",
	Help: "Number of compensating changes that failed",
}, []string{"kind"})

var messagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "secun0c_messages_dropped_total",
	Help: "Number of messages dropped or deleted",
}, []string{"reason"})

var botsScreened = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "secun0c_bots_screened_total",
	Help: "Number of joining bots banned or quarantined",
}, []string{"outcome"})

var webhooksRemoved = promauto.NewCounter(prometheus.CounterOpts{
	Name: "secun0c_webhooks_removed_total",
	Help: "Number of webhooks removed by the guard",
})
