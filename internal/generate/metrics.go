package generate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics contains statically-registered Prometheus metrics for the package.
var metrics = struct {
	reactionsGenerated prometheus.Counter
	candidatesRejected *prometheus.CounterVec
}{
	reactionsGenerated: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "generate",
		Name:      "reactions_total",
		Help:      "The cumulative number of reactions emitted by family generators.",
	}),
	candidatesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "generate",
		Name:      "candidates_rejected_total",
		Help: `The cumulative number of candidate slot assignments rejected, by reason.

Reasons: recipe (the action sequence does not apply), product_count (the
template's declared product count differs), forbidden, charge, identity,
no_gas_product, forbidden_reverse.`,
	}, []string{"reason"}),
}
