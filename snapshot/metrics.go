package snapshot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var snapshotOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "secun0c_snapshot_ops_total",
	Help: "Number of snapshot captures and restores",
}, []string{"op"})
