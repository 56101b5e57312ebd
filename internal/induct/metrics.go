package induct

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics contains statically-registered Prometheus metrics for the package.
var metrics = struct {
	nodesSplit         prometheus.Counter
	nodesPruned        prometheus.Counter
	subtreesDispatched prometheus.Counter
	rulesFitted        prometheus.Counter
}{
	nodesSplit: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "induct",
		Name:      "nodes_split_total",
		Help:      "The cumulative number of tree nodes refined into children.",
	}),
	nodesPruned: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "induct",
		Name:      "nodes_pruned_total",
		Help:      "The cumulative number of subtrees discarded between training batches.",
	}),
	subtreesDispatched: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "induct",
		Name:      "subtrees_dispatched_total",
		Help:      "The cumulative number of subtrees handed to worker goroutines.",
	}),
	rulesFitted: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "induct",
		Name:      "rules_fitted_total",
		Help:      "The cumulative number of rate rules fitted onto tree nodes.",
	}),
}
