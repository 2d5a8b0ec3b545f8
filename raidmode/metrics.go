package raidmode

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var raidTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "secun0c_raid_transitions_total",
	Help: "Number of raid mode transitions",
}, []string{"type"})
