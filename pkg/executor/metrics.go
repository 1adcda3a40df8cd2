package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const tracerName = "codeflare.executor"

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codeflare_pipeline_runs_total",
		Help: "Pipeline runs by outcome (success, error).",
	}, []string{"outcome"})

	invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codeflare_node_invocations_total",
		Help: "Node invocations by node name and outcome (success, error).",
	}, []string{"node", "outcome"})

	invocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codeflare_node_invocation_duration_seconds",
		Help:    "Time spent in a node's transform capability.",
		Buckets: prometheus.DefBuckets,
	}, []string{"node"})

	inflightInvocations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "codeflare_node_invocations_inflight",
		Help: "Node invocations dispatched and not yet settled.",
	})
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
