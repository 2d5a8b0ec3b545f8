package responder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var neutralizeCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "secun0c_neutralize_total",
	Help: "Number of actors neutralized",
}, []string{"action"})

var neutralizeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "secun0c_neutralize_errors",
	Help: "Number of neutralize attempts that failed",
}, []string{"step"})

var violationCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "secun0c_violations_total",
	Help: "Number of violations recorded in the ledger",
}, []string{"action"})
