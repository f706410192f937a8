package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	examplesGeneratedMetric = promauto.NewCounter(prometheus.CounterOpts{Name: "datagen_examples_generated", Help: "Examples produced across all branches"})
	parseFailuresMetric     = promauto.NewCounter(prometheus.CounterOpts{Name: "datagen_parse_failures", Help: "Model outputs that failed to parse"})
	requestsDroppedMetric   = promauto.NewCounter(prometheus.CounterOpts{Name: "datagen_requests_dropped", Help: "Generation requests dropped after exhausting retries"})
	branchDurationMetric    = promauto.NewSummary(prometheus.SummaryOpts{Name: "datagen_branch_duration_seconds", Help: "Branch execution time"})
)
