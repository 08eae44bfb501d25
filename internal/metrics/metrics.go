// Package metrics holds the prometheus collectors of the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StageTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "snfix_stage_total",
		Help: "Pipeline stage outcomes by stage and outcome",
	}, []string{"stage", "outcome"})
	PropertyOverrides = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "snfix_property_overrides_total",
		Help: "Property reads whose value was rewritten, by property name",
	}, []string{"name"})
	CompanionServed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "snfix_companion_served_total",
		Help: "Companion connections handled, by outcome",
	}, []string{"outcome"})
	CompanionBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snfix_companion_bytes_total",
		Help: "Payload bytes sent by the companion",
	})
)

func init() {
	prometheus.MustRegister(StageTotal)
	prometheus.MustRegister(PropertyOverrides)
	prometheus.MustRegister(CompanionServed)
	prometheus.MustRegister(CompanionBytes)
}

// Stage records one outcome of a pipeline stage.
func Stage(stage, outcome string) {
	StageTotal.WithLabelValues(stage, outcome).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
