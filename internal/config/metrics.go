package config

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics contains statically-registered Prometheus metrics for the package.
var metrics = struct {
	familiesLoaded prometheus.Counter
	trainingRules  *prometheus.CounterVec
}{
	familiesLoaded: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "config",
		Name:      "families_loaded_total",
		Help:      "The cumulative number of family definitions loaded.",
	}),
	trainingRules: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "config",
		Name:      "training_rules_total",
		Help: `The cumulative number of rate rules ingested from training
reactions, by the direction the reaction was stored in.`,
	}, []string{"direction"}),
}
