package estimate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics contains statically-registered Prometheus metrics for the package.
var metrics = struct {
	estimates   *prometheus.CounterVec
	rulesFilled prometheus.Counter
	reverseFits prometheus.Counter
}{
	estimates: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "estimate",
		Name:      "estimates_total",
		Help: `The cumulative number of rate models estimated, by method.

Methods: exact (the requested combination holds a rule), template (a single
ancestor combination was used), average (several combinations on one lattice
level were averaged).`,
	}, []string{"method"}),
	rulesFilled: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "estimate",
		Name:      "rules_filled_total",
		Help:      "The cumulative number of rule-table gaps filled by child averaging.",
	}),
	reverseFits: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "estimate",
		Name:      "reverse_fits_total",
		Help:      "The cumulative number of reverse-direction Arrhenius fits.",
	}),
}
