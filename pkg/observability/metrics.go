package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veldtlab/grove/pkg/domain"
)

// metrics contains statically-registered Prometheus metrics for the package.
var metrics = struct {
	reactions  *prometheus.CounterVec
	estimates  *prometheus.CounterVec
	inductions prometheus.Histogram
	treeNodes  *prometheus.GaugeVec
}{
	reactions: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "engine",
		Name:      "reactions_total",
		Help:      "Reactions handed back by generation calls, by family.",
	}, []string{"family"}),
	estimates: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "engine",
		Name:      "estimates_total",
		Help:      "Rate estimates resolved, by family and exactness.",
	}, []string{"family", "exact"}),
	inductions: promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "grove",
		Subsystem: "engine",
		Name:      "induction_duration_seconds",
		Help:      "Wall time of tree growth, regularization and rule fitting.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	}),
	treeNodes: promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "grove",
		Subsystem: "engine",
		Name:      "tree_nodes",
		Help:      "Entries in the most recently grown tree, by family.",
	}, []string{"family"}),
}

// Hooks returns lifecycle hooks that record engine activity in the
// package's Prometheus metrics. Pass the result to grove.WithLifecycleHooks.
func Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnReaction: func(_ context.Context, ev *domain.ReactionEvent) {
			metrics.reactions.WithLabelValues(ev.Family).Inc()
		},
		OnEstimate: func(_ context.Context, ev *domain.EstimateEvent) {
			exact := "false"
			if ev.Exact {
				exact = "true"
			}
			metrics.estimates.WithLabelValues(ev.Family, exact).Inc()
		},
		OnInduction: func(_ context.Context, ev *domain.InductionEvent) {
			metrics.inductions.Observe(ev.Duration.Seconds())
			metrics.treeNodes.WithLabelValues(ev.Family).Set(float64(ev.Nodes))
		},
	}
}

// Handler exposes the default Prometheus registry over HTTP, for mounting
// at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
